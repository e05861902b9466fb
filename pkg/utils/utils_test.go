package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"NotHTML", ErrNotHTML, "Content_NotHTML"},
		{"SemaphoreTimeout", ErrSemaphoreTimeout, "Resource_SemaphoreTimeout"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"NoSeeds", ErrNoSeeds, "Seed_None"},
		{"BudgetExhausted", ErrBudgetExhausted, "Policy_Budget"},
		{"Sink", ErrSink, "Sink_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "WrappedNotHTML",
			err:      fmt.Errorf("content-type image/png: %w", ErrNotHTML),
			expected: "Content_NotHTML",
		},
		{
			name:     "DoubleWrapped",
			err:      fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrSink)),
			expected: "Sink_Other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_RetryFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "ServerErrorAfterRetries",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 503", ErrServerHTTPError)),
			expected: "RetryFailed_HTTPServer",
		},
		{
			name:     "TooManyRequestsAfterRetries",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 429", ErrClientHTTPError)),
			expected: "RetryFailed_HTTPClient",
		},
		{
			name:     "TimeoutAfterRetries",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("i/o timeout")),
			expected: "RetryFailed_NetworkTimeout",
		},
		{
			name:     "RefusedAfterRetries",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("dial tcp: connection refused")),
			expected: "RetryFailed_ConnectionRefused",
		},
		{
			name:     "OtherAfterRetries",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("EOF")),
			expected: "RetryFailed_NetworkOther",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"404", fmt.Errorf("%w: status 404 Not Found", ErrClientHTTPError), "HTTP_404"},
		{"403", fmt.Errorf("%w: status 403 Forbidden", ErrClientHTTPError), "HTTP_403"},
		{"401", fmt.Errorf("%w: status 401 Unauthorized", ErrClientHTTPError), "HTTP_401"},
		{"429", fmt.Errorf("%w: status 429 Too Many Requests", ErrClientHTTPError), "HTTP_429"},
		{"Generic4xx", fmt.Errorf("%w: status 400", ErrClientHTTPError), "HTTP_4xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ParsingErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"URLParsing", fmt.Errorf("URL parsing failed: %w", ErrParsing), "Content_ParsingURL"},
		{"HTMLParsing", fmt.Errorf("HTML parsing failed: %w", ErrParsing), "Content_ParsingHTML"},
		{"XMLParsing", fmt.Errorf("XML parsing failed: %w", ErrParsing), "Content_ParsingXML"},
		{"JSONParsing", fmt.Errorf("JSON parsing failed: %w", ErrParsing), "Content_ParsingJSON"},
		{"GenericParsing", fmt.Errorf("parsing failed: %w", ErrParsing), "Content_ParsingOther"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ContextCanceled", context.Canceled, "System_ContextCanceled"},
		{"ContextDeadlineExceeded", context.DeadlineExceeded, "System_ContextDeadlineExceeded"},
		{"SemaphoreDeadline", fmt.Errorf("acquire semaphore: %w", context.DeadlineExceeded), "Resource_SemaphoreTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Timeout", errors.New("connection timeout occurred"), "Network_TimeoutGeneric"},
		{"ConnectionRefused", errors.New("connection refused"), "Network_ConnectionRefused"},
		{"DNSLookup", errors.New("no such host"), "Network_DNSLookup"},
		{"TLS", errors.New("tls handshake failed"), "Network_TLS"},
		{"ConnectionReset", errors.New("reset by peer"), "Network_ConnectionReset"},
		{"BrokenPipe", errors.New("broken pipe"), "Network_BrokenPipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	err := errors.New("some completely unknown error")
	if result := CategorizeError(err); result != "Unknown" {
		t.Errorf("CategorizeError(%v) = %q, want %q", err, result, "Unknown")
	}
}

// --- SanitizeFilename / StateDirName Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain", "example.com", "example.com"},
		{"Slashes", "a/b\\c", "a_b_c"},
		{"CollapsedUnderscores", "a::??b", "a_b"},
		{"TrimmedEdges", "__x__", "x"},
		{"Empty", "", "untitled"},
		{"OnlyInvalid", "<>|", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename_LongNames(t *testing.T) {
	result := SanitizeFilename(strings.Repeat("a", 150))
	if len(result) > 100 {
		t.Errorf("SanitizeFilename(long) length = %d, want <= 100", len(result))
	}
}

func TestStateDirName(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{"FirstHost", []string{"https://WWW.Example.com/jobs", "https://other.org"}, "www.example.com"},
		{"SkipsUnparseable", []string{"::bad", "https://example.co.uk"}, "example.co.uk"},
		{"Empty", nil, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateDirName(tt.input); got != tt.expected {
				t.Errorf("StateDirName(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// --- CompileRegexPatterns Tests ---

func TestCompileRegexPatterns_ValidPatterns(t *testing.T) {
	patterns := []string{
		`url:\s*["'](/?[^"']+)["']`,
		`\.html$`,
		`[a-z]+`,
	}

	compiled, err := CompileRegexPatterns(patterns, false)
	if err != nil {
		t.Fatalf("CompileRegexPatterns() unexpected error: %v", err)
	}
	if len(compiled) != 3 {
		t.Errorf("CompileRegexPatterns() returned %d patterns, want 3", len(compiled))
	}
}

func TestCompileRegexPatterns_CaseInsensitive(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{`careers`}, true)
	if err != nil {
		t.Fatalf("CompileRegexPatterns() unexpected error: %v", err)
	}
	if !compiled[0].MatchString("/CAREERS/london") {
		t.Error("expected case-insensitive pattern to match upper-case input")
	}
}

func TestCompileRegexPatterns_EmptyStringsSkipped(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{"valid", "", "also_valid", ""}, false)
	if err != nil {
		t.Fatalf("CompileRegexPatterns() unexpected error: %v", err)
	}
	if len(compiled) != 2 {
		t.Errorf("CompileRegexPatterns() returned %d patterns, want 2", len(compiled))
	}
}

func TestCompileRegexPatterns_InvalidPattern(t *testing.T) {
	_, err := CompileRegexPatterns([]string{`valid`, `[invalid`}, false)
	if err == nil {
		t.Fatal("CompileRegexPatterns() expected error for invalid pattern, got nil")
	}
	if !errors.Is(err, ErrConfigValidation) {
		t.Errorf("CompileRegexPatterns() error = %v, want wrapped ErrConfigValidation", err)
	}
}

// --- WrapErrorf Tests ---

func TestWrapErrorf_NilError(t *testing.T) {
	if result := WrapErrorf(nil, "some context"); result != nil {
		t.Errorf("WrapErrorf(nil, ...) = %v, want nil", result)
	}
}

func TestWrapErrorf_WrapsError(t *testing.T) {
	original := errors.New("original error")
	wrapped := WrapErrorf(original, "context %s", "value")

	if wrapped == nil {
		t.Fatal("WrapErrorf() returned nil, want error")
	}
	if !errors.Is(wrapped, original) {
		t.Error("WrapErrorf() result should wrap original error")
	}
	if wrapped.Error() != "context value: original error" {
		t.Errorf("WrapErrorf() message = %q, want %q", wrapped.Error(), "context value: original error")
	}
}
