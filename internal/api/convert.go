package api

import (
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/uebergang/gateway/internal/models"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toDescriptors(descriptors []protocol.CredentialDescriptor) []CredentialDescriptor {
	out := make([]CredentialDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		transports := make([]string, 0, len(d.Transport))
		for _, t := range d.Transport {
			transports = append(transports, string(t))
		}
		out = append(out, CredentialDescriptor{
			Type:       string(d.Type),
			ID:         base64.RawURLEncoding.EncodeToString(d.CredentialID),
			Transports: transports,
		})
	}
	return out
}

func toAssertionRequest(assertion *protocol.CredentialAssertion) AssertionRequest {
	opts := assertion.Response
	return AssertionRequest{
		Challenge:        base64.RawURLEncoding.EncodeToString(opts.Challenge),
		Timeout:          opts.Timeout,
		RPID:             opts.RelyingPartyID,
		AllowCredentials: toDescriptors(opts.AllowedCredentials),
		UserVerification: string(opts.UserVerification),
	}
}

func entityID(id any) string {
	switch v := id.(type) {
	case protocol.URLEncodedBase64:
		return base64.RawURLEncoding.EncodeToString(v)
	case []byte:
		return base64.RawURLEncoding.EncodeToString(v)
	case string:
		return base64.RawURLEncoding.EncodeToString([]byte(v))
	}
	return ""
}

func toCreationOptions(creation *protocol.CredentialCreation) CreationOptions {
	opts := creation.Response

	parameters := make([]CredentialParameters, 0, len(opts.Parameters))
	for _, p := range opts.Parameters {
		parameters = append(parameters, CredentialParameters{
			Type:      string(p.Type),
			Algorithm: int(p.Algorithm),
		})
	}

	return CreationOptions{
		RP: EnrollRP{
			Name: opts.RelyingParty.Name,
			ID:   opts.RelyingParty.ID,
		},
		User: EnrollUser{
			Name:        opts.User.Name,
			ID:          entityID(opts.User.ID),
			DisplayName: opts.User.DisplayName,
		},
		Challenge:          base64.RawURLEncoding.EncodeToString(opts.Challenge),
		Parameters:         parameters,
		Timeout:            opts.Timeout,
		Attestation:        string(opts.Attestation),
		ExcludeCredentials: toDescriptors(opts.CredentialExcludeList),
		AuthenticatorSelection: AuthenticatorSelection{
			AuthenticatorAttachment: string(opts.AuthenticatorSelection.AuthenticatorAttachment),
			RequireResidentKey:      opts.AuthenticatorSelection.RequireResidentKey,
			ResidentKey:             string(opts.AuthenticatorSelection.ResidentKey),
			UserVerification:        string(opts.AuthenticatorSelection.UserVerification),
		},
	}
}

func toCredentialInfo(c *models.Credential) CredentialInfo {
	transports := c.Transports
	if transports == nil {
		transports = []string{}
	}
	usedBy := c.UsedBySessionIDs
	if usedBy == nil {
		usedBy = []string{}
	}
	return CredentialInfo{
		ID:         c.ID,
		Name:       c.Name,
		Type:       "webauthn",
		CreatedAt:  formatTime(c.CreatedAt),
		CreatedBy:  c.CreatedBySessionID,
		Transports: transports,
		LastUsedAt: formatTime(c.LastUsedAt),
		UsedBy:     usedBy,
		Aaguid:     c.AAGUID,
	}
}

func toSessionInfo(s *models.Session) SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		UserAgent:  s.UserAgent,
		RemoteAddr: s.RemoteAddr,
		CreatedAt:  formatTime(s.CreatedAt),
		AccessedAt: formatTime(s.AccessedAt),
	}
}

func toBackendInfo(b *models.Backend) BackendInfo {
	headers := make([]BackendHeaderInfo, 0, len(b.Headers))
	for _, h := range b.Headers {
		headers = append(headers, BackendHeaderInfo{Name: h.Name, Value: h.Value})
	}
	return BackendInfo{
		Fqdn:        b.Fqdn,
		UpstreamUrl: b.UpstreamURL,
		Headers:     headers,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
		AccessLevel: b.AccessLevel,
		JsScript:    b.JsScript,
	}
}

func toMqttProfileInfo(p *models.MqttProfile) MqttProfileInfo {
	publish := p.AllowPublish
	if publish == nil {
		publish = []string{}
	}
	subscribe := p.AllowSubscribe
	if subscribe == nil {
		subscribe = []string{}
	}
	return MqttProfileInfo{
		Id:             p.ID,
		AllowPublish:   publish,
		AllowSubscribe: subscribe,
	}
}

func toMqttClientInfo(c *models.MqttClient) MqttClientInfo {
	values := c.Values
	if values == nil {
		values = map[string]string{}
	}
	info := MqttClientInfo{
		Id:        c.ID,
		ProfileId: c.ProfileID,
		Password:  c.Password,
		Values:    values,
	}
	if c.Connected != nil {
		info.Connected = &MqttConnectedInfo{
			RemoteAddr:     c.Connected.RemoteAddr,
			ConnectedAt:    formatTime(c.Connected.ConnectedAt),
			ConnectionType: c.Connected.ConnectionType,
		}
	}
	if c.Disconnected != nil {
		info.Disconnected = &MqttDisconnectedInfo{
			RemoteAddr:     c.Disconnected.RemoteAddr,
			DisconnectedAt: formatTime(c.Disconnected.DisconnectedAt),
		}
	}
	return info
}
