package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"covercat/internal/records"
)

// RunRequest runs one record. An empty Stage runs the record's current stage.
type RunRequest struct {
	Stage string `json:"stage" validate:"omitempty,max=64"`
}

// BatchRunRequest runs the listed ids in order, or every runnable record
// when All is set.
type BatchRunRequest struct {
	IDs   []string `json:"ids" validate:"required_without=All,max=1000,dive,required,max=255"`
	All   bool     `json:"all"`
	Limit int      `json:"limit" validate:"gte=0,lte=1000"`
	Stage string   `json:"stage" validate:"omitempty,max=64"`
}

// ApproveRequest accepts a reviewed record, optionally with corrected
// attributes.
type ApproveRequest struct {
	Attributes map[string]string `json:"attributes" validate:"omitempty,dive,keys,required,max=64,endkeys,max=65536"`
}

// Corrected returns the corrected attributes, nil when none were sent.
func (r ApproveRequest) Corrected() records.Attributes {
	if len(r.Attributes) == 0 {
		return nil
	}
	return records.Attributes(r.Attributes)
}

// EditRequest overwrites stage outputs without moving the record.
type EditRequest struct {
	Attributes map[string]string `json:"attributes" validate:"required,min=1,dive,keys,required,max=64,endkeys,max=65536"`
}

// ListRequest filters the record listing. Zero values mean no filter.
type ListRequest struct {
	Stage  string `json:"stage" validate:"omitempty,max=64"`
	Status string `json:"status" validate:"omitempty,oneof=pending running succeeded failed review"`
	Limit  int    `json:"limit" validate:"gte=0,lte=1000"`
}

// Filter converts the request into a store filter.
func (r ListRequest) Filter() records.Filter {
	filter := records.Filter{Limit: r.Limit}
	if stage := strings.TrimSpace(r.Stage); stage != "" {
		filter.Stages = []string{stage}
	}
	if r.Status != "" {
		filter.Statuses = []records.Status{records.Status(r.Status)}
	}
	return filter
}

// RetryRequest restarts a record from Stage.
type RetryRequest struct {
	Stage string `json:"stage" validate:"required,max=64"`
}

// ReviewRequest flags a record for manual review.
type ReviewRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ErrInvalidRequest marks request bodies that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// Validate checks a request DTO and returns a readable ErrInvalidRequest.
func Validate(req any) error {
	err := validatorInstance().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}
