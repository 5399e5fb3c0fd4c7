package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket and key names mirror the firmware's NVS namespaces so a dump of the
// store reads the same as the flash layout it replaces.
var (
	bucketWiFi = []byte("wifi_config")
	bucketMode = []byte("mode_config")

	keySSID        = []byte("ssid")
	keyPassword    = []byte("password")
	keyProvisioned = []byte("provisioned")
	keyDeviceMode  = []byte("device_mode")
	keyIntervalSec = []byte("interval_sec")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketWiFi, bucketMode} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetCredentials() (*Credentials, error) {
	var creds Credentials
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWiFi)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketWiFi)
		}
		ssid := b.Get(keySSID)
		if ssid == nil {
			return fmt.Errorf("credentials: %w", ErrNotFound)
		}
		creds.SSID = string(ssid)
		creds.Password = string(b.Get(keyPassword))
		creds.Provisioned = len(b.Get(keyProvisioned)) == 1 && b.Get(keyProvisioned)[0] == 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

func (s *BoltStore) SaveCredentials(ssid, password string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWiFi)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketWiFi)
		}
		if err := b.Put(keySSID, []byte(ssid)); err != nil {
			return err
		}
		if err := b.Put(keyPassword, []byte(password)); err != nil {
			return err
		}
		return b.Put(keyProvisioned, []byte{1})
	})
}

func (s *BoltStore) ClearCredentials() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWiFi)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketWiFi)
		}
		for _, k := range [][]byte{keySSID, keyPassword, keyProvisioned} {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetSettings() (*Settings, error) {
	var st Settings
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMode)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketMode)
		}
		mode := b.Get(keyDeviceMode)
		if mode == nil {
			return fmt.Errorf("settings: %w", ErrNotFound)
		}
		st.Mode = int(mode[0])
		if iv := b.Get(keyIntervalSec); len(iv) == 4 {
			st.IntervalSec = int(iv[0])<<24 | int(iv[1])<<16 | int(iv[2])<<8 | int(iv[3])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BoltStore) SaveSettings(st *Settings) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMode)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketMode)
		}
		if err := b.Put(keyDeviceMode, []byte{byte(st.Mode)}); err != nil {
			return err
		}
		iv := st.IntervalSec
		return b.Put(keyIntervalSec, []byte{byte(iv >> 24), byte(iv >> 16), byte(iv >> 8), byte(iv)})
	})
}

// Wipe deletes and recreates every bucket. Used by factory_reset.
func (s *BoltStore) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketWiFi, bucketMode} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
