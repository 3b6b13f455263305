package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/bootstrap"
	"github.com/smallbiznis/valora-filing/internal/config"
	"github.com/smallbiznis/valora-filing/internal/forms"
)

type cli struct {
	production bool
	markdown   bool
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
	client *taxapi.Client
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "filingctl",
		Short:         "Create, transmit and track information return filings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&c.production, "production", false, "use the production environment instead of the sandbox")
	root.PersistentFlags().BoolVar(&c.markdown, "markdown", false, "render tables as markdown")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log requests and poll activity")

	root.AddCommand(
		c.formsCmd(),
		c.submitCmd(),
		c.validateCmd(),
		c.statusCmd(),
		c.watchCmd(),
		c.listCmd(),
		c.pdfCmd(),
		c.deleteCmd(),
		c.keygenCmd(),
	)
	return root
}

// setup loads configuration and builds the client on first use.
func (c *cli) setup() error {
	if c.client != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = zap.NewNop()
	if c.verbose {
		if c.logger, err = bootstrap.NewLogger(config.Config{Environment: "development"}); err != nil {
			return err
		}
	}
	c.client = bootstrap.NewTaxClient(cfg, c.logger)
	if c.production {
		c.client.SetEnvironment(false)
	}
	return nil
}

// formService resolves the form argument and returns its service.
func (c *cli) formService(form string) (*forms.Service[json.RawMessage], error) {
	if err := c.setup(); err != nil {
		return nil, err
	}
	info, err := forms.Lookup(form)
	if err != nil {
		return nil, fmt.Errorf("%w (run \"filingctl forms\" for the supported list)", err)
	}
	return forms.New[json.RawMessage](c.client, info.Path), nil
}
