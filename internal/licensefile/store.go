// Package licensefile keeps the signed license a client activated on disk.
package licensefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/adamscao/licenseserver/internal/license"
)

const (
	fileMode   = 0600
	dirMode    = 0755
	backupExt  = ".backup"
	jsonIndent = "  "
)

var (
	// ErrNotFound is returned when no license file exists
	ErrNotFound = errors.New("license file not found")

	// ErrNoBackup is returned when restoring without a backup file
	ErrNoBackup = errors.New("license backup not found")
)

// MissingFieldsError lists required license fields that are empty
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("license is missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Info describes the license file on disk
type Info struct {
	Path    string    `json:"path"`
	Exists  bool      `json:"exists"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified,omitempty"`
}

// Store reads and writes one license file and its backup
type Store struct {
	fs         afero.Fs
	path       string
	backupPath string
}

// New creates a store for the license at path. The backup lives next to
// it with a .backup suffix.
func New(fs afero.Fs, path string) *Store {
	return &Store{
		fs:         fs,
		path:       path,
		backupPath: path + backupExt,
	}
}

// Path returns the license file path
func (s *Store) Path() string {
	return s.path
}

// BackupPath returns the backup file path
func (s *Store) BackupPath() string {
	return s.backupPath
}

// Save writes rec as indented JSON readable by the owner only. An existing
// license is copied to the backup first.
func (s *Store) Save(rec license.SignedRecord) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("failed to create license directory: %w", err)
	}

	if s.Exists() {
		if err := s.copy(s.path, s.backupPath); err != nil {
			return fmt.Errorf("failed to back up license: %w", err)
		}
		log.WithField("path", s.backupPath).Debug("License backup created")
	}

	data, err := json.MarshalIndent(rec, "", jsonIndent)
	if err != nil {
		return fmt.Errorf("failed to encode license: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.path, data, fileMode); err != nil {
		return fmt.Errorf("failed to write license: %w", err)
	}
	// WriteFile keeps the mode of a file that already existed
	if err := s.fs.Chmod(s.path, fileMode); err != nil {
		return fmt.Errorf("failed to set license permissions: %w", err)
	}

	log.WithFields(log.Fields{
		"path":        s.path,
		"license_key": rec.LicenseKey,
	}).Info("License saved")
	return nil
}

// Load reads the license file
func (s *Store) Load() (*license.SignedRecord, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read license: %w", err)
	}

	var rec license.SignedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid license file %s: %w", s.path, err)
	}
	return &rec, nil
}

// Exists reports whether the license file is present
func (s *Store) Exists() bool {
	ok, err := afero.Exists(s.fs, s.path)
	return err == nil && ok
}

// RestoreBackup replaces the license file with its backup
func (s *Store) RestoreBackup() error {
	ok, err := afero.Exists(s.fs, s.backupPath)
	if err != nil {
		return fmt.Errorf("failed to check backup: %w", err)
	}
	if !ok {
		return ErrNoBackup
	}

	if err := s.copy(s.backupPath, s.path); err != nil {
		return fmt.Errorf("failed to restore license: %w", err)
	}

	log.WithField("path", s.backupPath).Info("License restored from backup")
	return nil
}

// Delete removes the license file. A missing file is not an error.
func (s *Store) Delete() error {
	err := s.fs.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	return nil
}

// Info describes the license file
func (s *Store) Info() (Info, error) {
	info := Info{Path: s.path}

	fi, err := s.fs.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("failed to stat license: %w", err)
	}

	info.Exists = true
	info.Size = fi.Size()
	info.ModTime = fi.ModTime()
	return info, nil
}

// Validate loads the license and checks it with Validate
func (s *Store) Validate() (*license.SignedRecord, error) {
	rec, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) copy(from, to string) error {
	data, err := afero.ReadFile(s.fs, from)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, to, data, fileMode); err != nil {
		return err
	}
	return s.fs.Chmod(to, fileMode)
}

// Validate checks that rec carries every field a verifier needs and a well
// formed license key. It does not check the signature.
func Validate(rec *license.SignedRecord) error {
	required := []struct {
		name  string
		empty bool
	}{
		{"customer_name", rec.CustomerName == ""},
		{"username", rec.Username == ""},
		{"product_name", rec.ProductName == ""},
		{"product_id", rec.ProductID == ""},
		{"license_key", rec.LicenseKey == ""},
		{"status", rec.Status == ""},
		{"start_date", rec.StartDate.IsZero()},
		{"expiry_date", rec.ExpiryDate.IsZero()},
		{"signature", rec.Signature == ""},
	}

	var missing []string
	for _, f := range required {
		if f.empty {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}

	if _, err := license.ParseKey(rec.LicenseKey); err != nil {
		return err
	}
	return nil
}
