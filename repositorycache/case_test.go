package repositorycache

import "testing"

type UserProfile struct{}

type HTTPServer struct{}

func TestToSnake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"User", "user"},
		{"UserProfile", "user_profile"},
		{"HTTPServer", "http_server"},
		{"UserV2", "user_v2"},
		{"Base64Encoder", "base64_encoder"},
		{"user-profile", "user_profile"},
		{"pkg.User", "pkg_user"},
		{"__Weird__Name__", "weird_name"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := toSnake(tt.in); got != tt.want {
				t.Errorf("toSnake(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEntityTypeOf(t *testing.T) {
	if got := entityTypeOf[UserProfile](); got != "user_profile" {
		t.Errorf("value type: got %q", got)
	}
	if got := entityTypeOf[*HTTPServer](); got != "http_server" {
		t.Errorf("pointer type: got %q", got)
	}
}
