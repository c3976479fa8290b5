package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"aperture/booking/internal/auth"
	"aperture/booking/internal/config"
	"aperture/booking/internal/model"
	"aperture/booking/internal/payments"
	"aperture/booking/internal/repository"
)

type Server struct {
	cfg      config.Config
	store    *repository.Store
	payments *payments.Initiator
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewServer(cfg config.Config, store *repository.Store, initiator *payments.Initiator, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		payments: initiator,
		redis:    redisClient,
		cacheTTL: cfg.ClassCacheTTL,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("photography class booking service is running"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/jwt", s.handleIssueToken)

	r.With(s.authMiddleware, s.requireAdmin).Get("/users", s.handleListUsers)
	r.Post("/users", s.handleRegisterUser)
	r.Patch("/users/admin/{userID}", s.handlePromoteAdmin)
	r.Patch("/users/instructor/{userID}", s.handlePromoteInstructor)
	r.With(s.authMiddleware).Get("/users/admin/{email}", s.handleCheckAdmin)
	r.With(s.authMiddleware).Get("/users/instructor/{email}", s.handleCheckInstructor)
	r.With(s.authMiddleware).Get("/users/student/{email}", s.handleCheckStudent)

	r.Get("/class", s.handleListClasses)
	r.With(s.authMiddleware).Post("/class", s.handleCreateClass)
	r.Patch("/class/approve/{classID}", s.handleApproveClass)
	r.Patch("/class/denied/{classID}", s.handleDenyClass)
	r.Patch("/class/dec/{classID}", s.handleEnrollClass)

	r.With(s.authMiddleware).Get("/selects", s.handleListSelections)
	r.Post("/selects", s.handleCreateSelection)
	r.Delete("/selects/{selectionID}", s.handleDeleteSelection)

	r.With(s.authMiddleware).Post("/create-payment-intent", s.handleCreatePaymentIntent)
	r.With(s.authMiddleware).Post("/payments", s.handleRecordPayment)
	r.With(s.authMiddleware).Get("/paymentinfo", s.handleListPayments)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		role, err := s.store.GetRoleByEmail(r.Context(), claims.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Tokens

type issueTokenRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		Email: req.Email,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Users

type userSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	PhotoURL  *string `json:"photoUrl,omitempty"`
	Role      string  `json:"role,omitempty"`
	CreatedOn int64   `json:"createdOn"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		PhotoURL:  user.PhotoURL,
		Role:      string(user.Role),
		CreatedOn: user.CreatedAt.Unix(),
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	users, err := s.store.ListUsers(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]userSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, mapUserSummary(user))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type registerUserRequest struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	PhotoURL *string `json:"photoUrl,omitempty"`
	Role     string  `json:"role,omitempty"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	user := model.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      strings.TrimSpace(req.Name),
		PhotoURL:  req.PhotoURL,
		Role:      model.ParseRole(req.Role),
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.store.CreateUser(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{"message": "user already exists"})
		return
	}

	writeJSON(w, http.StatusCreated, mapUserSummary(user))
}

func (s *Server) handlePromoteAdmin(w http.ResponseWriter, r *http.Request) {
	s.promoteUser(w, r, model.RoleAdmin)
}

func (s *Server) handlePromoteInstructor(w http.ResponseWriter, r *http.Request) {
	s.promoteUser(w, r, model.RoleInstructor)
}

func (s *Server) promoteUser(w http.ResponseWriter, r *http.Request, role model.Role) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id")
		return
	}

	updated, err := s.store.UpdateUserRole(r.Context(), userID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "role": string(role)})
}

func (s *Server) handleCheckAdmin(w http.ResponseWriter, r *http.Request) {
	role, ok := s.resolveOwnRole(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"admin": role == model.RoleAdmin})
}

func (s *Server) handleCheckInstructor(w http.ResponseWriter, r *http.Request) {
	role, ok := s.resolveOwnRole(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"instructor": role == model.RoleInstructor})
}

func (s *Server) handleCheckStudent(w http.ResponseWriter, r *http.Request) {
	role, ok := s.resolveOwnRole(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"student": role == model.RoleStudent})
}

// resolveOwnRole enforces the self-match rule for the role-status
// routes: a mismatched email terminates the request with 403 before
// any lookup runs.
func (s *Server) resolveOwnRole(w http.ResponseWriter, r *http.Request) (model.Role, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return model.RoleNone, false
	}
	email := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "email")))
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return model.RoleNone, false
	}
	if claims.Email != email {
		writeError(w, http.StatusForbidden, "forbidden")
		return model.RoleNone, false
	}

	role, err := s.store.GetRoleByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return model.RoleNone, false
	}
	return role, true
}

// Classes

type classSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Image           *string `json:"image,omitempty"`
	InstructorName  string  `json:"instructorName"`
	InstructorEmail string  `json:"instructorEmail"`
	AvailableSeats  int     `json:"availableSeats"`
	NumStudents     int     `json:"numStudents"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
	CreatedOn       int64   `json:"createdOn"`
}

func mapClassSummary(class model.Class) classSummary {
	return classSummary{
		ID:              class.ID,
		Name:            class.Name,
		Image:           class.Image,
		InstructorName:  class.InstructorName,
		InstructorEmail: class.InstructorEmail,
		AvailableSeats:  class.AvailableSeats,
		NumStudents:     class.NumStudents,
		Price:           class.Price,
		Status:          string(class.Status),
		CreatedOn:       class.CreatedAt.Unix(),
	}
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	if data, ok := s.cachedClassList(r.Context()); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	classes, err := s.store.ListClassesByPopularity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]classSummary, 0, len(classes))
	for _, class := range classes {
		summaries = append(summaries, mapClassSummary(class))
	}

	data, err := json.Marshal(summaries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.storeClassList(r.Context(), data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type createClassRequest struct {
	Name            string  `json:"name"`
	Image           *string `json:"image,omitempty"`
	InstructorName  string  `json:"instructorName"`
	InstructorEmail string  `json:"instructorEmail"`
	AvailableSeats  int     `json:"availableSeats"`
	Price           float64 `json:"price"`
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}
	instructorEmail := strings.TrimSpace(strings.ToLower(req.InstructorEmail))
	if instructorEmail == "" {
		instructorEmail = claims.Email
	}

	class := model.Class{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Image:           req.Image,
		InstructorName:  strings.TrimSpace(req.InstructorName),
		InstructorEmail: instructorEmail,
		AvailableSeats:  req.AvailableSeats,
		NumStudents:     0,
		Price:           req.Price,
		Status:          model.ClassPending,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.CreateClass(r.Context(), class); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.invalidateClassList(r.Context())

	writeJSON(w, http.StatusCreated, mapClassSummary(class))
}

func (s *Server) handleApproveClass(w http.ResponseWriter, r *http.Request) {
	s.setClassStatus(w, r, model.ClassApproved)
}

func (s *Server) handleDenyClass(w http.ResponseWriter, r *http.Request) {
	s.setClassStatus(w, r, model.ClassDenied)
}

func (s *Server) setClassStatus(w http.ResponseWriter, r *http.Request, status model.ClassStatus) {
	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}

	updated, err := s.store.UpdateClassStatus(r.Context(), classID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}
	s.invalidateClassList(r.Context())

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleEnrollClass(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}

	class, err := s.store.EnrollStudent(r.Context(), classID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.invalidateClassList(r.Context())

	writeJSON(w, http.StatusOK, mapClassSummary(class))
}

// Selections

type selectionSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	ClassID   string  `json:"classId"`
	ClassName string  `json:"className"`
	Image     *string `json:"image,omitempty"`
	Price     float64 `json:"price"`
	CreatedOn int64   `json:"createdOn"`
}

func mapSelectionSummary(selection model.Selection) selectionSummary {
	return selectionSummary{
		ID:        selection.ID,
		Email:     selection.Email,
		ClassID:   selection.ClassID,
		ClassName: selection.ClassName,
		Image:     selection.Image,
		Price:     selection.Price,
		CreatedOn: selection.CreatedAt.Unix(),
	}
}

func (s *Server) handleListSelections(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	email := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("email")))
	if email == "" {
		writeJSON(w, http.StatusOK, []selectionSummary{})
		return
	}
	if email != claims.Email {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	selections, err := s.store.ListSelectionsByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]selectionSummary, 0, len(selections))
	for _, selection := range selections {
		summaries = append(summaries, mapSelectionSummary(selection))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createSelectionRequest struct {
	Email     string  `json:"email"`
	ClassID   string  `json:"classId"`
	ClassName string  `json:"className"`
	Image     *string `json:"image,omitempty"`
	Price     float64 `json:"price"`
}

func (s *Server) handleCreateSelection(w http.ResponseWriter, r *http.Request) {
	var req createSelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	selection := model.Selection{
		ID:        uuid.NewString(),
		Email:     req.Email,
		ClassID:   req.ClassID,
		ClassName: strings.TrimSpace(req.ClassName),
		Image:     req.Image,
		Price:     req.Price,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateSelection(r.Context(), selection); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapSelectionSummary(selection))
}

func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	selectionID := chi.URLParam(r, "selectionID")
	if selectionID == "" {
		writeError(w, http.StatusBadRequest, "missing_selection_id")
		return
	}

	deleted, err := s.store.DeleteSelection(r.Context(), selectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "selection_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Payments

type paymentIntentRequest struct {
	Price float64 `json:"price"`
}

func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_price")
		return
	}

	clientSecret, err := s.payments.CreateIntent(r.Context(), req.Price)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "payment_provider_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": clientSecret})
}

type paymentSummary struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	ClassID       *string `json:"classId,omitempty"`
	ClassName     *string `json:"className,omitempty"`
	Date          string  `json:"date"`
}

func mapPaymentSummary(payment model.Payment) paymentSummary {
	return paymentSummary{
		ID:            payment.ID,
		Email:         payment.Email,
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount,
		ClassID:       payment.ClassID,
		ClassName:     payment.ClassName,
		Date:          payment.PaidAt.UTC().Format(time.RFC3339),
	}
}

type recordPaymentRequest struct {
	SelectionID   string  `json:"id"`
	Email         string  `json:"email"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	ClassID       *string `json:"classId,omitempty"`
	ClassName     *string `json:"className,omitempty"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		req.Email = claims.Email
	}

	payment := model.Payment{
		ID:            uuid.NewString(),
		Email:         req.Email,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		ClassID:       req.ClassID,
		ClassName:     req.ClassName,
		PaidAt:        time.Now().UTC(),
	}

	selectionDeleted, err := s.store.RecordPayment(r.Context(), payment, req.SelectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"payment":          mapPaymentSummary(payment),
		"selectionDeleted": selectionDeleted,
	})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	email := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("email")))
	if email == "" {
		writeJSON(w, http.StatusOK, []paymentSummary{})
		return
	}
	if email != claims.Email {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	paymentRecords, err := s.store.ListPaymentsByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]paymentSummary, 0, len(paymentRecords))
	for _, payment := range paymentRecords {
		summaries = append(summaries, mapPaymentSummary(payment))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Class list cache

const classListKey = "classes:popular"

func (s *Server) cachedClassList(ctx context.Context) ([]byte, bool) {
	if s.redis == nil {
		return nil, false
	}
	value, err := s.redis.Get(ctx, classListKey).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

func (s *Server) storeClassList(ctx context.Context, data []byte) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Set(ctx, classListKey, data, s.cacheTTL).Err()
}

func (s *Server) invalidateClassList(ctx context.Context) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, classListKey).Err()
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
