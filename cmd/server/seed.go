package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/signin"
	"github.com/uebergang/gateway/internal/storage"
)

// Seed declares directory state applied at startup: users that must exist
// and the backends and MQTT profiles the proxy should know about. Existing
// entries are updated in place; users are matched by email and never
// recreated.
type Seed struct {
	Users []struct {
		Email        string   `yaml:"email"`
		DisplayName  string   `yaml:"displayName"`
		Admin        bool     `yaml:"admin"`
		AllowedHosts []string `yaml:"allowedHosts"`
	} `yaml:"users"`
	Backends []struct {
		Fqdn        string `yaml:"fqdn"`
		UpstreamURL string `yaml:"upstreamUrl"`
		AccessLevel string `yaml:"accessLevel"`
		Headers     []struct {
			Name  string `yaml:"name"`
			Value string `yaml:"value"`
		} `yaml:"headers"`
	} `yaml:"backends"`
	MqttProfiles []struct {
		ID             string   `yaml:"id"`
		AllowPublish   []string `yaml:"allowPublish"`
		AllowSubscribe []string `yaml:"allowSubscribe"`
	} `yaml:"mqttProfiles"`
}

// ApplySeed loads the seed file and reconciles the directory against it.
// For each newly created user a recovery link is logged, since a fresh
// user has no credentials to sign in with.
func ApplySeed(ctx context.Context, path string, directory storage.Directory, signinManager *signin.Manager) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, su := range seed.Users {
		existing, err := directory.GetUserByEmail(ctx, su.Email)
		if err == nil {
			err = directory.UpdateUser(ctx, existing.ID, func(old *models.User) (*models.User, error) {
				if old == nil {
					return nil, fmt.Errorf("user %s disappeared", existing.ID)
				}
				old.DisplayName = su.DisplayName
				old.IsAdmin = su.Admin
				old.AllowedHosts = su.AllowedHosts
				old.UpdatedAt = time.Now()
				return old, nil
			})
			if err != nil {
				return fmt.Errorf("failed to update seeded user %s: %w", su.Email, err)
			}
			continue
		}

		id := uuid.New().String()
		now := time.Now()
		err = directory.UpdateUser(ctx, id, func(old *models.User) (*models.User, error) {
			return &models.User{
				ID:           id,
				Email:        su.Email,
				DisplayName:  su.DisplayName,
				IsAdmin:      su.Admin,
				AllowedHosts: su.AllowedHosts,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, nil
		})
		if err != nil {
			return fmt.Errorf("failed to create seeded user %s: %w", su.Email, err)
		}

		_, url, err := signinManager.CreateRecovery(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to create recovery link for %s: %w", su.Email, err)
		}
		slog.Info("Seeded user", "email", su.Email, "signin_url", url)
	}

	for _, sb := range seed.Backends {
		sb := sb
		err := directory.UpdateBackend(ctx, sb.Fqdn, func(old *models.Backend) (*models.Backend, error) {
			now := time.Now()
			if old == nil {
				old = &models.Backend{
					Fqdn:      sb.Fqdn,
					CreatedAt: now,
				}
			}
			old.UpstreamURL = sb.UpstreamURL
			old.AccessLevel = sb.AccessLevel
			if old.AccessLevel == "" {
				old.AccessLevel = models.AccessLevelNormal
			}
			headers := make([]models.BackendHeader, 0, len(sb.Headers))
			for _, h := range sb.Headers {
				headers = append(headers, models.BackendHeader{Name: h.Name, Value: h.Value})
			}
			old.Headers = headers
			old.UpdatedAt = now
			return old, nil
		})
		if err != nil {
			return fmt.Errorf("failed to seed backend %s: %w", sb.Fqdn, err)
		}
	}

	for _, sp := range seed.MqttProfiles {
		sp := sp
		err := directory.UpdateMqttProfile(ctx, sp.ID, func(old *models.MqttProfile) (*models.MqttProfile, error) {
			return &models.MqttProfile{
				ID:             sp.ID,
				AllowPublish:   sp.AllowPublish,
				AllowSubscribe: sp.AllowSubscribe,
			}, nil
		})
		if err != nil {
			return fmt.Errorf("failed to seed mqtt profile %s: %w", sp.ID, err)
		}
	}

	return nil
}
