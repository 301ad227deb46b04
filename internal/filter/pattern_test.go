package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompileKind(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{raw: "Lex Fridman", want: KindExact},
		{raw: "*bonus*", want: KindGlob},
		{raw: "part ?", want: KindGlob},
		{raw: "[abc]", want: KindGlob},
		{raw: "/^Joe.*$/", want: KindRegex},
		{raw: "/a*b/", want: KindRegex},
		{raw: "/(bad/", want: KindInert},
		{raw: "/", want: KindExact},
		{raw: `/\bRecap\b/i`, want: KindExact},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Compile(tt.raw)
			if diff := cmp.Diff(tt.want.String(), got.Kind.String()); diff != "" {
				t.Errorf("Compile(%q).Kind mismatch (-want +got):\n%s", tt.raw, diff)
			}
			if (got.Kind == KindInert) != (got.Err != nil) {
				t.Errorf("Compile(%q): Err %v inconsistent with kind %v", tt.raw, got.Err, got.Kind)
			}
		})
	}
}

func TestTranslateGlob(t *testing.T) {
	tests := []struct {
		glob string
		text string
		want bool
	}{
		{glob: "*bonus*", text: "bonus episode 12", want: true},
		{glob: "*", text: "", want: true},
		{glob: "a/*", text: "a/b/c", want: true},
		{glob: "ep ?", text: "ep 1", want: true},
		{glob: "ep ?", text: "ep 12", want: false},
		{glob: "ep [0-9]", text: "ep 7", want: true},
		{glob: "ep [!0-9]", text: "ep 7", want: false},
		{glob: "ep [!0-9]", text: "ep x", want: true},
		{glob: "[]]", text: "]", want: true},
		{glob: "[unclosed", text: "[unclosed", want: true},
		{glob: "a.b*", text: "axb", want: false},
		{glob: "(x)*", text: "(x) y", want: true},
		{glob: "line*", text: "line one\nline two", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.glob+"|"+tt.text, func(t *testing.T) {
			p := Compile(tt.glob)
			if p.Kind != KindGlob {
				t.Fatalf("Compile(%q) kind = %v, want glob", tt.glob, p.Kind)
			}
			got := p.re.MatchString(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("glob %q on %q mismatch (-want +got):\n%s", tt.glob, tt.text, diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "plain keyword", pattern: "hello", wantErr: false},
		{name: "valid regex", pattern: "/k8s|docker|helm/", wantErr: false},
		{name: "glob", pattern: "*bonus*", wantErr: false},
		{name: "invalid regex unclosed group", pattern: "/(invalid/", wantErr: true},
		{name: "invalid regex bad repetition", pattern: "/*bad/", wantErr: true},
		{name: "invalid glob range", pattern: "[z-a]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pattern)
			gotErr := err != nil
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Errorf("Validate() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
