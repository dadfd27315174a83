package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uebergang/gateway/internal/models"
)

// FilesystemDirectory stores the directory as JSON documents under a data
// path, one subdirectory per entity type. A process-wide mutex serializes
// mutations; the filesystem backend assumes a single gateway instance.
type FilesystemDirectory struct {
	basePath string
	mu       sync.Mutex
}

func NewFilesystemDirectory(basePath string) (*FilesystemDirectory, error) {
	for _, sub := range []string{"users", "backends", "mqtt-profiles", "mqtt-clients"} {
		if err := os.MkdirAll(filepath.Join(basePath, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s path: %w", sub, err)
		}
	}
	return &FilesystemDirectory{basePath: basePath}, nil
}

// fileKey flattens an identifier (fqdn, email-shaped id) into a safe
// filename.
func fileKey(id string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(id)
}

func readDoc[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &doc, nil
}

func writeDoc[T any](path string, doc *T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func listDocs[T any](dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var docs []*T
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := readDoc[T](filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func updateDoc[T any](path string, fn func(old *T) (*T, error)) error {
	old, err := readDoc[T](path)
	if err != nil && err != ErrNotFound {
		return err
	}
	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}
	return writeDoc(path, updated)
}

func deleteDoc(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (f *FilesystemDirectory) userPath(id string) string {
	return filepath.Join(f.basePath, "users", fileKey(id)+".json")
}

func (f *FilesystemDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readDoc[models.User](f.userPath(id))
}

func (f *FilesystemDirectory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := f.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FilesystemDirectory) ListUsers(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return listDocs[models.User](filepath.Join(f.basePath, "users"))
}

func (f *FilesystemDirectory) UpdateUser(ctx context.Context, id string, fn func(old *models.User) (*models.User, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return updateDoc(f.userPath(id), fn)
}

func (f *FilesystemDirectory) DeleteUser(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return deleteDoc(f.userPath(id))
}

func (f *FilesystemDirectory) backendPath(fqdn string) string {
	return filepath.Join(f.basePath, "backends", fileKey(fqdn)+".json")
}

func (f *FilesystemDirectory) GetBackend(ctx context.Context, fqdn string) (*models.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readDoc[models.Backend](f.backendPath(fqdn))
}

func (f *FilesystemDirectory) ListBackends(ctx context.Context) ([]*models.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return listDocs[models.Backend](filepath.Join(f.basePath, "backends"))
}

func (f *FilesystemDirectory) UpdateBackend(ctx context.Context, fqdn string, fn func(old *models.Backend) (*models.Backend, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return updateDoc(f.backendPath(fqdn), fn)
}

func (f *FilesystemDirectory) DeleteBackend(ctx context.Context, fqdn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return deleteDoc(f.backendPath(fqdn))
}

func (f *FilesystemDirectory) mqttProfilePath(id string) string {
	return filepath.Join(f.basePath, "mqtt-profiles", fileKey(id)+".json")
}

func (f *FilesystemDirectory) GetMqttProfile(ctx context.Context, id string) (*models.MqttProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readDoc[models.MqttProfile](f.mqttProfilePath(id))
}

func (f *FilesystemDirectory) ListMqttProfiles(ctx context.Context) ([]*models.MqttProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return listDocs[models.MqttProfile](filepath.Join(f.basePath, "mqtt-profiles"))
}

func (f *FilesystemDirectory) UpdateMqttProfile(ctx context.Context, id string, fn func(old *models.MqttProfile) (*models.MqttProfile, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return updateDoc(f.mqttProfilePath(id), fn)
}

func (f *FilesystemDirectory) DeleteMqttProfile(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return deleteDoc(f.mqttProfilePath(id))
}

func (f *FilesystemDirectory) mqttClientPath(id string) string {
	return filepath.Join(f.basePath, "mqtt-clients", fileKey(id)+".json")
}

func (f *FilesystemDirectory) GetMqttClient(ctx context.Context, id string) (*models.MqttClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readDoc[models.MqttClient](f.mqttClientPath(id))
}

func (f *FilesystemDirectory) ListMqttClients(ctx context.Context) ([]*models.MqttClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return listDocs[models.MqttClient](filepath.Join(f.basePath, "mqtt-clients"))
}

func (f *FilesystemDirectory) UpdateMqttClient(ctx context.Context, id string, fn func(old *models.MqttClient) (*models.MqttClient, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return updateDoc(f.mqttClientPath(id), fn)
}

func (f *FilesystemDirectory) DeleteMqttClient(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return deleteDoc(f.mqttClientPath(id))
}
