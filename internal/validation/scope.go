package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"

	maxIDLength       = 128
	maxFilenameLength = 255
)

// Scope contains the tenant/company/user a request acts for.
type Scope struct {
	TenantID  string
	CompanyID string
	UserID    string
}

// ScopeFromHeaders reads and validates the scope headers. Tenant is always
// required; company only when requireCompany is set (uploads).
func ScopeFromHeaders(h http.Header, requireCompany bool) (*Scope, error) {
	s := &Scope{
		TenantID:  strings.TrimSpace(h.Get(HeaderTenantID)),
		CompanyID: strings.TrimSpace(h.Get(HeaderCompanyID)),
		UserID:    strings.TrimSpace(h.Get(HeaderUserID)),
	}
	if s.TenantID == "" {
		return nil, fmt.Errorf("%s header is required", HeaderTenantID)
	}
	if err := ValidateID(HeaderTenantID, s.TenantID); err != nil {
		return nil, err
	}
	if s.CompanyID == "" && requireCompany {
		return nil, fmt.Errorf("%s header is required", HeaderCompanyID)
	}
	if s.CompanyID != "" {
		if err := ValidateID(HeaderCompanyID, s.CompanyID); err != nil {
			return nil, err
		}
	}
	if s.UserID != "" {
		if err := ValidateID(HeaderUserID, s.UserID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ValidateID accepts opaque identifiers made of letters, digits and - _ . :
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s is too long", field)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return fmt.Errorf("%s contains invalid character %q", field, r)
		}
	}
	return nil
}

// ValidateUpload checks an uploaded statement before it is ingested.
// maxBytes <= 0 disables the size limit.
func ValidateUpload(filename string, size, maxBytes int64) error {
	name := strings.TrimSpace(filename)
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if !utf8.ValidString(name) || len(name) > maxFilenameLength {
		return fmt.Errorf("invalid filename")
	}
	if c := CleanFilename(name); c == "" || c == "." || c == ".." {
		return fmt.Errorf("invalid filename")
	}
	if size == 0 {
		return fmt.Errorf("uploaded file is empty")
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("uploaded file exceeds %d MB", maxBytes>>20)
	}
	return nil
}

// CleanFilename keeps only the final path element of a client-supplied name.
func CleanFilename(filename string) string {
	name := strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

type scopeKey struct{}

func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromCtx returns the scope set by the request middleware, or nil.
func ScopeFromCtx(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}
