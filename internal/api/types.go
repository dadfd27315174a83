package api

import "github.com/uebergang/gateway/internal/models"

// Wire types for the WebAuthn options handed to the browser. The field
// names follow the W3C dictionaries so the frontend can pass them to
// navigator.credentials with minimal reshaping.

type CredentialDescriptor struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Transports []string `json:"transports"`
}

type AssertionRequest struct {
	Challenge        string                 `json:"challenge"`
	Timeout          int                    `json:"timeout"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification"`
}

type EnrollRP struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type EnrollUser struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type CredentialParameters struct {
	Type      string `json:"type"`
	Algorithm int    `json:"alg"`
}

type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	RequireResidentKey      *bool  `json:"requireResidentKey,omitempty"`
	ResidentKey             string `json:"residentKey,omitempty"`
	UserVerification        string `json:"userVerification,omitempty"`
}

type CreationOptions struct {
	RP                     EnrollRP               `json:"rp"`
	User                   EnrollUser             `json:"user"`
	Challenge              string                 `json:"challenge"`
	Parameters             []CredentialParameters `json:"pubKeyCredParams"`
	Timeout                int                    `json:"timeout"`
	Attestation            string                 `json:"attestation"`
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
}

type EnrollRequest struct {
	Token   string          `json:"token"`
	Options CreationOptions `json:"options"`
}

// signin/start

type StartSigninResponse struct {
	Token            string           `json:"token"`
	AssertionRequest AssertionRequest `json:"assertionRequest,omitempty"`
}

// signin/email

type SigninEmailRequest struct {
	Email    string `json:"email"`
	Redirect string `json:"redirect"`
}

type SigninEmailError struct {
	WrongEmail    bool `json:"wrong_email,omitempty"`
	NoCredentials bool `json:"no_credentials,omitempty"`
	InternalError bool `json:"internal_error,omitempty"`
}

type SigninEmailSuccess struct {
	Token            string           `json:"token"`
	AssertionRequest AssertionRequest `json:"assertionRequest"`
}

type SigninEmailResponse struct {
	Error   *SigninEmailError   `json:"error,omitempty"`
	Success *SigninEmailSuccess `json:"success,omitempty"`
}

// signin/webauthn

type SigninWebauthnRequest struct {
	Token      string                     `json:"token"`
	Credential models.AssertionCredential `json:"credential"`
	Redirect   string                     `json:"redirect"`
}

type SigninWebauthnError struct {
	InternalError     bool `json:"internalError,omitempty"`
	InvalidCredential bool `json:"invalidCredential,omitempty"`
}

type SigninWebauthnSuccess struct {
	Cookie   string `json:"cookie"`
	Redirect string `json:"redirect"`
}

type SigninWebauthnResponse struct {
	Error   *SigninWebauthnError   `json:"error,omitempty"`
	Success *SigninWebauthnSuccess `json:"success,omitempty"`
}

// signin/pin/request

type RequestSigninPinRequest struct {
	Email     string `json:"email"`
	UserAgent string `json:"userAgent"`
}

type RequestSigninPinError struct {
	InvalidEmail bool `json:"invalidEmail"`
}

type RequestSigninPinResponse struct {
	Error *RequestSigninPinError `json:"error,omitempty"`
	ID    string                 `json:"id,omitempty"`
}

// signin/pin/poll

type PollSigninPinRequest struct {
	Id       string `json:"id"`
	Redirect string `json:"redirect"`
}

type PollSigninPinError struct {
	InternalError bool `json:"internalError,omitempty"`
	InvalidToken  bool `json:"invalidToken,omitempty"`
	Expired       bool `json:"expired,omitempty"`
}

type SigninPollPending struct {
	Pin        string `json:"pin"`
	ConfirmUrl string `json:"confirm_url"`
	QrCodeUrl  string `json:"qr_code_url"`
}

type PollSigninPinSuccess struct {
	Cookie   string `json:"cookie"`
	Redirect string `json:"redirect"`
}

type PollSigninPinResponse struct {
	Error   *PollSigninPinError   `json:"error,omitempty"`
	Pending *SigninPollPending    `json:"pending,omitempty"`
	Success *PollSigninPinSuccess `json:"success,omitempty"`
}

// signin/pin/query

type QuerySigninPinRequest struct {
	Pin string `json:"pin"`
}

type QuerySigninPinError struct {
	InvalidPin         bool `json:"invalidPin,omitempty"`
	InvalidCredentials bool `json:"invalidCredentials,omitempty"`
}

type QuerySigninPinResponse struct {
	Error              *QuerySigninPinError `json:"error,omitempty"`
	ID                 string               `json:"id,omitempty"`
	Pin                string               `json:"pin,omitempty"`
	RequestorUserAgent string               `json:"requestor_user_agent"`
	RequestorIP        string               `json:"requestor_ip"`
	Token              string               `json:"token,omitempty"`
	Confirmed          bool                 `json:"confirmed"`
	AssertionRequest   *AssertionRequest    `json:"assertionRequest,omitempty"`
}

// signin/pin/confirm

type ConfirmSigninPinRequest struct {
	Token      string                     `json:"token"`
	Credential models.AssertionCredential `json:"credential"`
}

type ConfirmSigninPinError struct {
	InvalidEnrollment bool `json:"invalidEnrollment,omitempty"`
}

type ConfirmSigninPinResponse struct {
	Error *ConfirmSigninPinError `json:"error,omitempty"`
}

// enroll

type StartEnrollRequest struct {
}

type StartEnrollResponse struct {
	EnrollRequest *EnrollRequest `json:"enrollRequest,omitempty"`
}

type FinishEnrollRequest struct {
	Token               string                     `json:"token"`
	AttestationResponse models.AttestationResponse `json:"attestationResponse"`
}

type FinishEnrollError struct {
	InvalidEnrollment bool `json:"invalidEnrollment"`
}

type FinishEnrollResponse struct {
	Credential *CredentialInfo    `json:"credential,omitempty"`
	Error      *FinishEnrollError `json:"error,omitempty"`
}

// users, credentials, sessions

type SessionInfo struct {
	ID         string `json:"id"`
	UserAgent  string `json:"userAgent"`
	RemoteAddr string `json:"remoteAddr"`
	CreatedAt  string `json:"createdAt"`
	AccessedAt string `json:"accessedAt"`
}

type CredentialInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	CreatedAt  string   `json:"createdAt"`
	CreatedBy  string   `json:"created_by_session_id"`
	Transports []string `json:"transports"`
	LastUsedAt string   `json:"lastUsedAt"`
	UsedBy     []string `json:"used_by_session_ids"`
	Aaguid     string   `json:"aaguid"`
}

type UserInfo struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	DisplayName    string           `json:"displayName"`
	AllowedHosts   []string         `json:"allowedHosts"`
	IsAdmin        bool             `json:"isAdmin"`
	Credentials    []CredentialInfo `json:"credentials"`
	Sessions       []SessionInfo    `json:"sessions"`
	CurrentSession *SessionInfo     `json:"currentSession"`
}

type ListUsersResponse struct {
	Users []UserInfo `json:"users"`
}

type CreateUserRequest struct {
	Email string `json:"email"`
}

type CreateUserResponse struct {
	ID string `json:"id"`
}

type UpdateUserRequest struct {
	Email        *string   `json:"email,omitempty"`
	DisplayName  *string   `json:"displayName,omitempty"`
	Admin        *bool     `json:"admin,omitempty"`
	AllowedHosts *[]string `json:"allowedHosts,omitempty"`
}

type UpdateUserResponse struct {
}

type UserRecoverResponse struct {
	RecoveryUrl string `json:"recoveryUrl"`
}

type UpdateCredentialRequest struct {
	Name *string `json:"name"`
}

type UpdateCredentialResponse struct {
}

// backends

type BackendHeaderInfo struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type BackendInfo struct {
	Fqdn        string              `json:"fqdn"`
	UpstreamUrl string              `json:"upstreamUrl"`
	Headers     []BackendHeaderInfo `json:"headers"`
	CreatedAt   string              `json:"createdAt"`
	UpdatedAt   string              `json:"updatedAt"`
	AccessLevel string              `json:"accessLevel"`
	JsScript    string              `json:"jsScript"`
}

type UpdateBackendRequest struct {
	UpstreamUrl *string              `json:"upstreamUrl"`
	Headers     *[]BackendHeaderInfo `json:"headers"`
	AccessLevel *string              `json:"accessLevel"`
	JsScript    string               `json:"jsScript"`
}

type UpdateBackendResponse struct {
}

type ListBackendsResponse struct {
	Backends []BackendInfo `json:"backends"`
}

// mqtt

type MqttProfileInfo struct {
	Id             string   `json:"id"`
	AllowPublish   []string `json:"allow_publish"`
	AllowSubscribe []string `json:"allow_subscribe"`
}

type UpdateMqttProfileRequest struct {
	AllowPublish   *[]string `json:"allow_publish"`
	AllowSubscribe *[]string `json:"allow_subscribe"`
}

type UpdateMqttProfileResponse struct {
}

type ListMqttProfilesResponse struct {
	MqttProfiles []MqttProfileInfo `json:"mqtt_profiles"`
}

type MqttConnectedInfo struct {
	RemoteAddr     string `json:"remoteAddr"`
	ConnectedAt    string `json:"connectedAt"`
	ConnectionType string `json:"connectionType"`
}

type MqttDisconnectedInfo struct {
	RemoteAddr     string `json:"remoteAddr"`
	DisconnectedAt string `json:"disconnectedAt"`
}

type MqttClientInfo struct {
	Id           string                `json:"id"`
	ProfileId    string                `json:"profile_id"`
	Password     string                `json:"password,omitempty"`
	Values       map[string]string     `json:"values"`
	Connected    *MqttConnectedInfo    `json:"connected,omitempty"`
	Disconnected *MqttDisconnectedInfo `json:"disconnected,omitempty"`
}

type UpdateMqttClientRequest struct {
	ProfileId *string            `json:"profile_id"`
	Password  *string            `json:"password"`
	Values    *map[string]string `json:"values"`
}

type UpdateMqttClientResponse struct {
}

type ListMqttClientsResponse struct {
	MqttClients []MqttClientInfo `json:"mqtt_clients"`
}
