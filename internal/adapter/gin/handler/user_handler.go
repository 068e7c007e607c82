package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-crud-service/internal/usecase/user"
	apperrors "user-crud-service/pkg/errors"
	"user-crud-service/pkg/logger"
)

// Response messages that are part of the HTTP contract.
const (
	MsgEmailExists     = "Email already exists"
	MsgUserNotFound    = "User not found"
	MsgInvalidID       = "Invalid ID format"
	MsgEmptyBody       = "Request body cannot be empty"
	MsgUserDeleted     = "User deleted successfully"
	MsgNoUsers         = "No users found"
	MsgInternal        = "Internal server error"
	MsgInvalidJSON     = "Invalid JSON body"
	MsgBodyTooLarge    = "Request body too large"
	MsgRequiredFields  = user.ErrRequiredFields
	MsgUnexpectedValue = "name and email must be strings"
)

// operation identifies the handler an error came from. Unclassified failures
// are reported differently for writes and reads.
type operation int

const (
	opCreate operation = iota
	opList
	opGet
	opUpdate
	opDelete
)

func (op operation) writes() bool {
	return op == opCreate || op == opUpdate
}

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc  user.UserUsecase
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.UserUsecase, log *zap.Logger) *UserHandler {
	return &UserHandler{
		uc:  uc,
		log: log,
	}
}

// CreateUserRequest represents the HTTP request body for creating a user.
// Fields other than name and email are ignored.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserResponse represents the HTTP response for user data
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmptyListResponse is returned by GET /users when no user exists.
type EmptyListResponse struct {
	Message string         `json:"message"`
	Data    []UserResponse `json:"data"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func toUserResponse(u *user.UserResponse) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// readJSON decodes the request body into dst. It returns io.EOF for an empty body.
func readJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(c.Request.Body).Decode(dst)
}

// respondBodyError writes the response for a body that could not be decoded.
func (h *UserHandler) respondBodyError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: MsgBodyTooLarge})
		return
	}
	logger.WithContext(c.Request.Context(), h.log).Debug("invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgInvalidJSON})
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := readJSON(c, &req); err != nil && !errors.Is(err, io.EOF) {
		h.respondBodyError(c, err)
		return
	}

	resp, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.respondError(c, opCreate, err)
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(resp))
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(c *gin.Context) {
	resp, err := h.uc.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, opList, err)
		return
	}

	if len(resp.Users) == 0 {
		c.JSON(http.StatusOK, EmptyListResponse{Message: MsgNoUsers, Data: []UserResponse{}})
		return
	}

	users := make([]UserResponse, len(resp.Users))
	for i := range resp.Users {
		users[i] = toUserResponse(&resp.Users[i])
	}
	c.JSON(http.StatusOK, users)
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	resp, err := h.uc.GetUser(c.Request.Context(), user.GetUserRequest{ID: c.Param("id")})
	if err != nil {
		h.respondError(c, opGet, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(resp))
}

// UpdateUser handles PUT /users/:id. An empty object is rejected before the
// store is consulted; keys other than name and email are ignored.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := readJSON(c, &raw); err != nil {
		if errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgEmptyBody})
			return
		}
		h.respondBodyError(c, err)
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgEmptyBody})
		return
	}

	req := user.UpdateUserRequest{ID: c.Param("id")}
	var err error
	if req.Name, err = optionalString(raw, "name"); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgUnexpectedValue})
		return
	}
	if req.Email, err = optionalString(raw, "email"); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: MsgUnexpectedValue})
		return
	}

	resp, err := h.uc.UpdateUser(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, opUpdate, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(resp))
}

// optionalString returns nil when key is absent. A JSON null clears the field,
// which the usecase then rejects as missing.
func optionalString(raw map[string]json.RawMessage, key string) (*string, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	var s *string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, err
	}
	if s == nil {
		s = new(string)
	}
	return s, nil
}

// DeleteUser handles DELETE /users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if _, err := h.uc.DeleteUser(c.Request.Context(), user.DeleteUserRequest{ID: c.Param("id")}); err != nil {
		h.respondError(c, opDelete, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: MsgUserDeleted})
}

// statusFor maps an error onto the HTTP contract. Unclassified failures keep
// their message on writes and are withheld on reads.
func statusFor(op operation, err error) (int, string) {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest, err.Error()
	case apperrors.KindMalformedID:
		return http.StatusBadRequest, MsgInvalidID
	case apperrors.KindNotFound:
		return http.StatusNotFound, MsgUserNotFound
	case apperrors.KindConflict:
		return http.StatusConflict, MsgEmailExists
	}
	if op.writes() {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, MsgInternal
}

// respondError writes exactly one error response for err.
func (h *UserHandler) respondError(c *gin.Context, op operation, err error) {
	status, msg := statusFor(op, err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context(), h.log).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, ErrorResponse{Error: msg})
}
