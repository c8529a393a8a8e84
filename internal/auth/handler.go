package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"publish-auth/internal/observability"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

const (
	maxJSONBodyBytes  = 1 << 20
	minPasswordLength = 8
	maxPasswordLength = 200
	maxEmailLength    = 254
)

type Handler struct {
	service *Service
	cookies CookiePolicy
	logger  *observability.Logger
}

func NewHandler(service *Service, cookies CookiePolicy, logger *observability.Logger) *Handler {
	return &Handler{service: service, cookies: cookies, logger: logger}
}

type envelope struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type signinData struct {
	User        PublicAccount `json:"user"`
	AccessToken string        `json:"accessToken"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.ToLower(strings.TrimSpace(body.Username))
	body.Email = strings.TrimSpace(body.Email)
	if msg := validateSignup(body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	account, err := h.service.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountExists):
			writeError(w, http.StatusConflict, "Account already exists, please login!")
		case errors.Is(err, ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.internalError(w, "signup_failed", err, "failed to register account")
		}
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Status: "success", Msg: "Account registered!", Data: account})
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var body signinRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" || len(body.Password) > maxPasswordLength {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.internalError(w, "signin_failed", err, "failed to login")
		return
	}

	http.SetCookie(w, h.cookies.RefreshCookie(result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt))
	writeJSON(w, http.StatusOK, envelope{
		Status: "success",
		Msg:    "Login successful!",
		Data:   signinData{User: result.Account, AccessToken: result.Tokens.AccessToken},
	})
}

// RefreshToken reads the token from the cookie, falling back to the JSON
// body, and answers with a rotated pair.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := decodeJSON(w, r, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	token := h.cookies.tokenFrom(r)
	if strings.TrimSpace(body.RefreshToken) != "" {
		token = body.RefreshToken
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			http.SetCookie(w, h.cookies.ClearCookie())
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		h.internalError(w, "refresh_failed", err, "failed to refresh token")
		return
	}

	http.SetCookie(w, h.cookies.RefreshCookie(pair.RefreshToken, pair.RefreshExpiresAt))
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: pair})
}

// Signout clears the cookie whatever the body holds; an unreadable body
// just means the cookie is the only token to revoke.
func (h *Handler) Signout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookies.ClearCookie())

	var body refreshRequest
	if err := decodeJSON(w, r, &body, true); err != nil {
		body = refreshRequest{}
	}

	token := h.cookies.tokenFrom(r)
	if strings.TrimSpace(body.RefreshToken) != "" {
		token = body.RefreshToken
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.internalError(w, "signout_failed", err, "failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Status: "success", Msg: "Logout successful!"})
}

// UserInfo must sit behind RequireAccess.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	account, err := h.service.Profile(r.Context(), claims)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "No user!")
			return
		}
		h.internalError(w, "user_info_failed", err, "failed to fetch user details")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Status: "success", Msg: "User details fetched successfully", Data: account})
}

func (h *Handler) internalError(w http.ResponseWriter, event string, err error, message string) {
	h.logger.Error(event, map[string]any{"error": err})

	if errors.Is(err, ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}

	observability.CaptureError(err)
	writeError(w, http.StatusInternalServerError, message)
}

func validateSignup(body signupRequest) string {
	if !usernameRegex.MatchString(body.Username) {
		return "username format is invalid"
	}
	if len(body.Email) > maxEmailLength || !emailRegex.MatchString(body.Email) {
		return "email format is invalid"
	}
	if utf8.RuneCountInString(body.Password) < minPasswordLength || len(body.Password) > maxPasswordLength {
		return "password must be between 8 and 200 characters"
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "error", Msg: message})
}
