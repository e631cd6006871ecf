// Package ledger persists the raw identity ledger and writes the derived
// contributor ledger.
package ledger

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitcredit/internal/errors"
	"github.com/rohankatakam/gitcredit/internal/models"
)

// ErrNoLedger means no usable prior ledger exists at the configured path.
// Callers decide whether to re-run the walk; an empty ledger is never
// substituted.
var ErrNoLedger = stderrors.New("no prior ledger available")

// Store reads and writes the raw ledger file
type Store struct {
	path   string
	logger *logrus.Logger
}

// NewStore creates a store for the ledger at path
func NewStore(path string, logger *logrus.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the ledger file location
func (s *Store) Path() string {
	return s.path
}

// Save replaces the ledger file atomically. Readers observe either the old
// or the new complete file.
func (s *Store) Save(ledger *models.Ledger) error {
	if ledger.Version == 0 {
		ledger.Version = models.LedgerVersion
	}
	if ledger.GeneratedAt.IsZero() {
		ledger.GeneratedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode ledger")
	}

	if err := SafeWrite(s.path, append(data, '\n'), 0644); err != nil {
		return errors.FileSystemErrorf(err, "failed to write ledger %s", s.path)
	}

	s.logger.WithFields(logrus.Fields{
		"path":        s.path,
		"identities":  len(ledger.Identities),
		"outstanding": len(ledger.OutstandingCommits),
	}).Info("Ledger saved")
	return nil
}

// Load reads the ledger. A missing, unreadable or structurally invalid file
// yields a Data error wrapping ErrNoLedger.
func (s *Store) Load() (*models.Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.DataErrorf(ErrNoLedger, "ledger %s does not exist", s.path)
		}
		return nil, errors.DataErrorf(fmt.Errorf("%w: %v", ErrNoLedger, err), "ledger %s is unreadable", s.path)
	}

	ledger, err := decode(data)
	if err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Ledger is corrupt")
		return nil, errors.DataErrorf(fmt.Errorf("%w: %v", ErrNoLedger, err), "ledger %s is corrupt", s.path)
	}
	return ledger, nil
}

// Exists reports whether a ledger file is present, valid or not
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func decode(data []byte) (*models.Ledger, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	identities, ok := fields["identities"]
	if !ok {
		return nil, fmt.Errorf("missing identities")
	}
	if bytes.Equal(bytes.TrimSpace(identities), []byte("null")) {
		return nil, fmt.Errorf("identities is null")
	}

	ledger := models.NewLedger()
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, err
	}
	if ledger.Version > models.LedgerVersion {
		return nil, fmt.Errorf("unsupported ledger version %d", ledger.Version)
	}

	if ledger.Identities == nil {
		ledger.Identities = make(map[string]*models.Identity)
	}
	if ledger.OutstandingCommits == nil {
		ledger.OutstandingCommits = make(map[string]*models.OutstandingCommit)
	}

	for key, identity := range ledger.Identities {
		if identity == nil {
			return nil, fmt.Errorf("identity %q is null", key)
		}
		if identity.Email == "" {
			identity.Email = strings.ToLower(key)
		}
	}
	return ledger, nil
}
