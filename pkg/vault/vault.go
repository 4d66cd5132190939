// Package vault persists connection credentials. Non-secret fields (host,
// port, username, initial path) live in a local SQLite database; the secret
// itself (password or private key) goes to the OS keychain and never touches
// the database.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/faredit/faredit/pkg/models"
)

// ServiceName namespaces our entries in the OS keychain.
const ServiceName = "faredit"

var (
	ErrRecordNotFound = errors.New("vault: record not found")
	ErrNoActiveRecord = errors.New("vault: no active record")
)

// Record is the non-secret part of one saved connection.
type Record struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null"`
	Host        string    `json:"host" gorm:"not null"`
	Port        int       `json:"port"`
	Username    string    `json:"username" gorm:"not null"`
	AuthMethod  string    `json:"auth_method"` // "password" or "private-key"
	InitialPath string    `json:"initial_path"`
	Active      bool      `json:"active" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// secret is what goes into the keychain, JSON-encoded.
type secret struct {
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

// Vault stores credential records and their secrets.
type Vault struct {
	db   *gorm.DB
	ring keyring.Keyring
}

// Open opens (creating if needed) the vault database at dbPath. A nil ring
// selects the OS keychain; tests pass a file-backed ring.
func Open(dbPath string, ring keyring.Keyring) (*Vault, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open vault db %s: %w", dbPath, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate vault db: %w", err)
	}

	if ring == nil {
		ring, err = keyring.Open(keyring.Config{ServiceName: ServiceName})
		if err != nil {
			return nil, fmt.Errorf("open keychain: %w", err)
		}
	}

	return &Vault{db: db, ring: ring}, nil
}

// Save stores a new record and its secret, returning the record ID.
func (v *Vault) Save(name string, creds models.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	method := "password"
	if creds.PrivateKey != "" {
		method = "private-key"
	}

	sec, err := json.Marshal(secret{Password: creds.Password, PrivateKey: creds.PrivateKey})
	if err != nil {
		return "", fmt.Errorf("encode secret: %w", err)
	}
	if err := v.ring.Set(keyring.Item{Key: secretKey(id), Data: sec, Label: name}); err != nil {
		return "", fmt.Errorf("store secret in keychain: %w", err)
	}

	rec := Record{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Host:        creds.Host,
		Port:        creds.Port,
		Username:    creds.Username,
		AuthMethod:  method,
		InitialPath: creds.InitialPath,
	}
	if err := v.db.Create(&rec).Error; err != nil {
		// Keep the keychain consistent with the database.
		_ = v.ring.Remove(secretKey(id))
		return "", fmt.Errorf("store vault record: %w", err)
	}
	return id, nil
}

// Get reassembles full credentials from the record and its keychain secret.
func (v *Vault) Get(id string) (*models.Credentials, error) {
	var rec Record
	if err := v.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("load vault record %s: %w", id, err)
	}

	item, err := v.ring.Get(secretKey(id))
	if err != nil {
		return nil, fmt.Errorf("load secret for %s: %w", id, err)
	}
	var sec secret
	if err := json.Unmarshal(item.Data, &sec); err != nil {
		return nil, fmt.Errorf("decode secret for %s: %w", id, err)
	}

	return &models.Credentials{
		Host:        rec.Host,
		Port:        rec.Port,
		Username:    rec.Username,
		Password:    sec.Password,
		PrivateKey:  sec.PrivateKey,
		InitialPath: rec.InitialPath,
	}, nil
}

// List returns all records, newest first. Secrets are not included.
func (v *Vault) List() ([]Record, error) {
	var recs []Record
	if err := v.db.Order("created_at desc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list vault records: %w", err)
	}
	return recs, nil
}

// Delete removes a record and its secret.
func (v *Vault) Delete(id string) error {
	res := v.db.Delete(&Record{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete vault record %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	if err := v.ring.Remove(secretKey(id)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("delete secret for %s: %w", id, err)
	}
	return nil
}

// SetActive marks one record as the active connection target.
func (v *Vault) SetActive(id string) error {
	return v.db.Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		if err := tx.Model(&Record{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&Record{}).Where("id = ?", id).Update("active", true).Error
	})
}

// ClearActive unmarks any active record.
func (v *Vault) ClearActive() error {
	return v.db.Model(&Record{}).Where("active = ?", true).Update("active", false).Error
}

// Active returns the active record's ID and credentials.
func (v *Vault) Active() (string, *models.Credentials, error) {
	var rec Record
	if err := v.db.First(&rec, "active = ?", true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrNoActiveRecord
		}
		return "", nil, fmt.Errorf("load active record: %w", err)
	}
	creds, err := v.Get(rec.ID)
	if err != nil {
		return "", nil, err
	}
	return rec.ID, creds, nil
}

func secretKey(id string) string { return "cred/" + id }
