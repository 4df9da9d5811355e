package assistant

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"voxassist/internal/models"

	"github.com/go-playground/validator/v10"
)

// Service handles user lifecycle, persona updates and the conversation log.
type Service struct {
	db       *sql.DB
	validate *validator.Validate
}

// NewService builds a new assistant service.
func NewService(db *sql.DB) *Service {
	return &Service{
		db:       db,
		validate: validator.New(),
	}
}

// RegisterUser creates a user with the supplied credentials.
func (s *Service) RegisterUser(ctx context.Context, userName, email, password string) (*models.User, error) {
	userName = strings.TrimSpace(userName)
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if userName == "" || email == "" || password == "" {
		return nil, errors.New("name, email and password are required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters long")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, errors.New("user already exists")
	}

	hash := hashPassword(password)
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_name, email, password_hash, assistant_name, assistant_image, created_at) VALUES (?, ?, ?, '', '', ?)`,
		userName, email, hash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{ID: id, UserName: userName, Email: email, PasswordHash: hash, CreatedAt: now}, nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_name, email, password_hash, assistant_name, assistant_image, created_at FROM users WHERE email = ?`, email,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.AssistantName, &user.AssistantImage, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("invalid email or password")
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if user.PasswordHash != hashPassword(password) {
		return nil, errors.New("invalid email or password")
	}
	return &user, nil
}

// GetUser loads one user profile by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, errors.New("invalid user id")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_name, email, password_hash, assistant_name, assistant_image, created_at FROM users WHERE id = ?`, id,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.AssistantName, &user.AssistantImage, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// UpdateAssistant sets the assistant persona name and avatar reference.
func (s *Service) UpdateAssistant(ctx context.Context, userID int64, assistantName, assistantImage string) (*models.User, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	assistantName = strings.TrimSpace(assistantName)
	assistantImage = strings.TrimSpace(assistantImage)
	if assistantName == "" || assistantImage == "" {
		return nil, errors.New("assistant name and image are required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET assistant_name = ?, assistant_image = ? WHERE id = ?`,
		assistantName, assistantImage, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update assistant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetUser(ctx, userID)
}

func hashPassword(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
