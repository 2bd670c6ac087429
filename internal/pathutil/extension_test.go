package pathutil

import "testing"

func TestFullExtension(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"rom.state.auto", "state.auto"},
		{"rom.sav", "sav"},
		{"rom", ""},
		{".gitignore", ""},
		{"a.b", "b"},
		{"dir/rom.state.auto", "state.auto"},
	}
	for _, c := range cases {
		if got := FullExtension(c.path); got != c.want {
			t.Errorf("FullExtension(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestRemoveFullExtensionRoundTrip(t *testing.T) {
	cases := []string{"rom.state.auto", "rom.sav", "rom", ".gitignore", "dir/rom.state.auto"}
	for _, path := range cases {
		ext := FullExtension(path)
		stripped := RemoveFullExtension(path)
		if ext == "" {
			if stripped != path {
				t.Errorf("RemoveFullExtension(%q) = %q, want identity", path, stripped)
			}
			continue
		}
		if stripped+"."+ext != path {
			t.Errorf("round trip failed for %q: stripped=%q ext=%q", path, stripped, ext)
		}
	}
}
