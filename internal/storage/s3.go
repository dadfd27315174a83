package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/uebergang/gateway/internal/models"
)

// S3Directory stores the directory as JSON objects in an S3-compatible
// bucket. Read-modify-write cycles are serialized by a process-wide mutex;
// like the filesystem backend it assumes a single writer instance.
type S3Directory struct {
	client *minio.Client
	bucket string
	mu     sync.Mutex
}

func NewS3Directory(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*S3Directory, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &S3Directory{client: client, bucket: bucket}, nil
}

func (s *S3Directory) getObject(ctx context.Context, key string, doc any) error {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *S3Directory) putObject(ctx context.Context, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *S3Directory) removeObject(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func s3Get[T any](ctx context.Context, s *S3Directory, key string) (*T, error) {
	var doc T
	if err := s.getObject(ctx, key, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func s3List[T any](ctx context.Context, s *S3Directory, prefix string) ([]*T, error) {
	var docs []*T
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, object.Err)
		}
		if !strings.HasSuffix(object.Key, ".json") {
			continue
		}
		doc, err := s3Get[T](ctx, s, object.Key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func s3Update[T any](ctx context.Context, s *S3Directory, key string, fn func(old *T) (*T, error)) error {
	old, err := s3Get[T](ctx, s, key)
	if err != nil && err != ErrNotFound {
		return err
	}
	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		return s.removeObject(ctx, key)
	}
	return s.putObject(ctx, key, updated)
}

func (s *S3Directory) userKey(id string) string { return "users/" + fileKey(id) + ".json" }

func (s *S3Directory) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Get[models.User](ctx, s, s.userKey(id))
}

func (s *S3Directory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := s.ListUsers(ctx)
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

func (s *S3Directory) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3List[models.User](ctx, s, "users/")
}

func (s *S3Directory) UpdateUser(ctx context.Context, id string, fn func(old *models.User) (*models.User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Update(ctx, s, s.userKey(id), fn)
}

func (s *S3Directory) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeObject(ctx, s.userKey(id))
}

func (s *S3Directory) backendKey(fqdn string) string { return "backends/" + fileKey(fqdn) + ".json" }

func (s *S3Directory) GetBackend(ctx context.Context, fqdn string) (*models.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Get[models.Backend](ctx, s, s.backendKey(fqdn))
}

func (s *S3Directory) ListBackends(ctx context.Context) ([]*models.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3List[models.Backend](ctx, s, "backends/")
}

func (s *S3Directory) UpdateBackend(ctx context.Context, fqdn string, fn func(old *models.Backend) (*models.Backend, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Update(ctx, s, s.backendKey(fqdn), fn)
}

func (s *S3Directory) DeleteBackend(ctx context.Context, fqdn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeObject(ctx, s.backendKey(fqdn))
}

func (s *S3Directory) mqttProfileKey(id string) string {
	return "mqtt-profiles/" + fileKey(id) + ".json"
}

func (s *S3Directory) GetMqttProfile(ctx context.Context, id string) (*models.MqttProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Get[models.MqttProfile](ctx, s, s.mqttProfileKey(id))
}

func (s *S3Directory) ListMqttProfiles(ctx context.Context) ([]*models.MqttProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3List[models.MqttProfile](ctx, s, "mqtt-profiles/")
}

func (s *S3Directory) UpdateMqttProfile(ctx context.Context, id string, fn func(old *models.MqttProfile) (*models.MqttProfile, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Update(ctx, s, s.mqttProfileKey(id), fn)
}

func (s *S3Directory) DeleteMqttProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeObject(ctx, s.mqttProfileKey(id))
}

func (s *S3Directory) mqttClientKey(id string) string {
	return "mqtt-clients/" + fileKey(id) + ".json"
}

func (s *S3Directory) GetMqttClient(ctx context.Context, id string) (*models.MqttClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Get[models.MqttClient](ctx, s, s.mqttClientKey(id))
}

func (s *S3Directory) ListMqttClients(ctx context.Context) ([]*models.MqttClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3List[models.MqttClient](ctx, s, "mqtt-clients/")
}

func (s *S3Directory) UpdateMqttClient(ctx context.Context, id string, fn func(old *models.MqttClient) (*models.MqttClient, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s3Update(ctx, s, s.mqttClientKey(id), fn)
}

func (s *S3Directory) DeleteMqttClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeObject(ctx, s.mqttClientKey(id))
}
