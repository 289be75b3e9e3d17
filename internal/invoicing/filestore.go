package invoicing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	accessRuleFile = ".htaccess"
	accessRule     = "Order Deny,Allow\nDeny from all\n"
	filenameChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// FileStore owns the directory generated invoices are written to.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (s *FileStore) WithClock(now func() time.Time) *FileStore {
	s.now = now
	return s
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Ensure creates the directory and its deny-all access rule.
func (s *FileStore) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create pdf dir: %w", err)
	}
	rule := filepath.Join(s.dir, accessRuleFile)
	if _, err := os.Stat(rule); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rule, []byte(accessRule), 0o644); err != nil {
			return fmt.Errorf("write access rule: %w", err)
		}
	}
	return nil
}

// NewPath returns an unused path for a fresh invoice.
func (s *FileStore) NewPath() (string, error) {
	if err := s.Ensure(); err != nil {
		return "", err
	}
	for attempt := 0; attempt < 3; attempt++ {
		name, err := secureFilename(s.now())
		if err != nil {
			return "", err
		}
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free pdf filename in %s", s.dir)
}

// Cleanup removes invoices last modified more than maxAge ago.
func (s *FileStore) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func secureFilename(now time.Time) (string, error) {
	suffix, err := randomString(12)
	if err != nil {
		return "", err
	}
	return "confirmation-" + now.Format("2006-01-02-15-04-05") + "-" + suffix + ".pdf", nil
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(filenameChars)))
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(filenameChars[idx.Int64()])
	}
	return b.String(), nil
}
