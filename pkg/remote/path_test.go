package remote

import "testing"

func TestJoinPath(t *testing.T) {
	cases := []struct{ base, rel, want string }{
		{"/path", "foo/", "/path/foo/"},
		{"/path/", "foo/", "/path/foo/"},
		{"/path/", "/foo/", "/path/foo/"},
		{"path", "/foo/", "path/foo/"},
	}
	for _, c := range cases {
		if got := JoinPath(c.base, c.rel); got != c.want {
			t.Errorf("JoinPath(%q, %q) = %q, want %q", c.base, c.rel, got, c.want)
		}
	}
}
