// Package apikey issues and verifies gateway API keys.
//
// A key reads "vf_<id>.<secret>". The id is public and selects the stored record;
// only the secret is hashed. A record is stored as "<id>:<argon2id PHC string>" and
// configured through API_KEY_HASHES.
package apikey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	keyPrefix   = "vf_"
	idBytes     = 4
	secretBytes = 32
	saltBytes   = 16
	sumBytes    = 32
)

// Cost parameters for new records.
var defaultParams = params{memory: 19 * 1024, time: 1, threads: 1}

var (
	// ErrMalformedKey is returned for a presented key that is not "vf_<id>.<secret>".
	ErrMalformedKey = errors.New("malformed api key")
	// ErrMalformedRecord is returned for a stored record that cannot be parsed.
	ErrMalformedRecord = errors.New("malformed api key record")
)

type params struct {
	memory  uint32
	time    uint32
	threads uint8
}

// Generate issues a new key together with the record to configure for it.
func Generate() (key, record string, err error) {
	id := make([]byte, idBytes)
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(id); err != nil {
		return "", "", fmt.Errorf("generate key id: %w", err)
	}
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("generate key secret: %w", err)
	}
	key = keyPrefix + hex.EncodeToString(id) + "." + base64.RawURLEncoding.EncodeToString(secret)
	record, err = Hash(key)
	if err != nil {
		return "", "", err
	}
	return key, record, nil
}

// Split returns the public id and the secret of a presented key.
func Split(key string) (id, secret string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(key), keyPrefix)
	if !ok {
		return "", "", ErrMalformedKey
	}
	id, secret, ok = strings.Cut(rest, ".")
	if !ok || id == "" || secret == "" {
		return "", "", ErrMalformedKey
	}
	return id, secret, nil
}

// Hash builds the stored record for key.
func Hash(key string) (string, error) {
	id, secret, err := Split(key)
	if err != nil {
		return "", err
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	r := Record{ID: id, params: defaultParams, salt: salt}
	r.sum = r.derive(secret, sumBytes)
	return r.String(), nil
}

// Record is a parsed stored key.
type Record struct {
	ID     string
	params params
	salt   []byte
	sum    []byte
}

// ParseRecord decodes "<id>:$argon2id$v=19$m=..,t=..,p=..$<salt>$<sum>".
func ParseRecord(encoded string) (Record, error) {
	id, phc, ok := strings.Cut(strings.TrimSpace(encoded), ":")
	if !ok || id == "" {
		return Record{}, ErrMalformedRecord
	}
	fields := strings.Split(phc, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return Record{}, ErrMalformedRecord
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Record{}, ErrMalformedRecord
	}
	var p params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return Record{}, ErrMalformedRecord
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return Record{}, ErrMalformedRecord
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return Record{}, ErrMalformedRecord
	}
	sum, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(sum) == 0 {
		return Record{}, ErrMalformedRecord
	}
	return Record{ID: id, params: p, salt: salt, sum: sum}, nil
}

// String encodes the record in its stored form.
func (r Record) String() string {
	return fmt.Sprintf("%s:$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		r.ID,
		argon2.Version,
		r.params.memory,
		r.params.time,
		r.params.threads,
		base64.RawStdEncoding.EncodeToString(r.salt),
		base64.RawStdEncoding.EncodeToString(r.sum),
	)
}

// Verify reports whether secret hashes to the stored sum.
func (r Record) Verify(secret string) bool {
	return subtle.ConstantTimeCompare(r.derive(secret, uint32(len(r.sum))), r.sum) == 1
}

func (r Record) derive(secret string, n uint32) []byte {
	return argon2.IDKey([]byte(secret), r.salt, r.params.time, r.params.memory, r.params.threads, n)
}

// Keyring holds the configured records by id. An empty Keyring accepts nothing and
// reports itself disabled.
type Keyring struct {
	records map[string]Record
}

// NewKeyring parses every record. A malformed or duplicate record is an error.
func NewKeyring(encoded []string) (*Keyring, error) {
	k := &Keyring{records: make(map[string]Record, len(encoded))}
	for i, e := range encoded {
		r, err := ParseRecord(e)
		if err != nil {
			return nil, fmt.Errorf("api key record %d: %w", i, err)
		}
		if _, dup := k.records[r.ID]; dup {
			return nil, fmt.Errorf("api key record %d: duplicate id %q", i, r.ID)
		}
		k.records[r.ID] = r
	}
	return k, nil
}

// Enabled reports whether any record is configured.
func (k *Keyring) Enabled() bool {
	return k != nil && len(k.records) > 0
}

// Match verifies a presented key and returns its id.
func (k *Keyring) Match(key string) (string, bool) {
	if !k.Enabled() {
		return "", false
	}
	id, secret, err := Split(key)
	if err != nil {
		return "", false
	}
	r, ok := k.records[id]
	if !ok || !r.Verify(secret) {
		return "", false
	}
	return id, true
}
