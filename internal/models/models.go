package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Defaults applied to videos whose caller omitted the field.
const (
	DefaultVideoHeight  = 1920
	DefaultVideoWidth   = 1080
	DefaultVideoQuality = 100
	DefaultControls     = true
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError lists the fields of a record that violate its schema.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// User represents an account within the VidShare platform.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an email so lookups are exact.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser builds a user record with a bcrypt hash of password.
func NewUser(email, password string, now time.Time) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, &ValidationError{Problems: []string{"email and password are required"}}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now = now.UTC().Truncate(time.Millisecond)
	return User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CheckPassword compares password against the stored hash in constant time.
func (u User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// Transformation encodes the target display aspect ratio and quality of a video.
type Transformation struct {
	Height  int  `json:"height" validate:"gt=0"`
	Width   int  `json:"width" validate:"gt=0"`
	Quality *int `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`
}

// Video is the metadata record of a clip hosted on the media CDN.
type Video struct {
	ID             string         `json:"id" validate:"required"`
	Title          string         `json:"title" validate:"required"`
	Description    string         `json:"description" validate:"required"`
	VideoURL       string         `json:"videoUrl" validate:"required"`
	ThumbnailURL   string         `json:"thumbnailUrl" validate:"required"`
	Controls       bool           `json:"controls"`
	Transformation Transformation `json:"transformation"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// VideoInput carries the caller-supplied fields of a new video. Nil pointers
// mean "not supplied" and receive the defaults.
type VideoInput struct {
	Title          string
	Description    string
	VideoURL       string
	ThumbnailURL   string
	Controls       *bool
	Transformation *TransformationInput
}

// TransformationInput is the optional part of VideoInput.
type TransformationInput struct {
	Height  *int
	Width   *int
	Quality *int
}

// MissingFields returns the names of required inputs that are empty.
func (in VideoInput) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(in.VideoURL) == "" {
		missing = append(missing, "videoUrl")
	}
	if strings.TrimSpace(in.ThumbnailURL) == "" {
		missing = append(missing, "thumbnailUrl")
	}
	return missing
}

// NewVideo validates the required inputs, fills in the defaults and validates the result.
func NewVideo(in VideoInput, now time.Time) (Video, error) {
	if missing := in.MissingFields(); len(missing) > 0 {
		return Video{}, &ValidationError{Problems: []string{"missing required fields: " + strings.Join(missing, ", ")}}
	}

	controls := DefaultControls
	if in.Controls != nil {
		controls = *in.Controls
	}

	transformation := Transformation{Height: DefaultVideoHeight, Width: DefaultVideoWidth}
	quality := DefaultVideoQuality
	if t := in.Transformation; t != nil {
		if t.Height != nil {
			transformation.Height = *t.Height
		}
		if t.Width != nil {
			transformation.Width = *t.Width
		}
		if t.Quality != nil {
			quality = *t.Quality
		}
	}
	transformation.Quality = &quality

	now = now.UTC().Truncate(time.Millisecond)
	video := Video{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		VideoURL:       strings.TrimSpace(in.VideoURL),
		ThumbnailURL:   strings.TrimSpace(in.ThumbnailURL),
		Controls:       controls,
		Transformation: transformation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := video.Validate(); err != nil {
		return Video{}, err
	}
	return video, nil
}

// Validate checks the record against the video schema.
func (v Video) Validate() error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate video: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return &ValidationError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 100", field)
	case "gt":
		return field + " must be positive"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
