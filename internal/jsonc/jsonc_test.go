package jsonc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tjsonc "github.com/tidwall/jsonc"
	"pgregory.net/rapid"
)

func TestStripComments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"no comments", `{"a": 1}`, `{"a": 1}`},
		{"line comment", "{\n  // comment\n  \"x\": 1\n}", "{\n  \n  \"x\": 1\n}"},
		{"line comment at eof", `{"x": 1} // done`, `{"x": 1} `},
		{"line comment ends at cr", "{// c\r\"x\": 1}", "{\r\"x\": 1}"},
		{"block comment", `{/* a */"x": /* b */1}`, `{"x": 1}`},
		{"multiline block comment", "{\n/*\n * doc\n */\n\"x\": 1}", "{\n\n\"x\": 1}"},
		{"unterminated block comment", `{"x": 1} /* open`, `{"x": 1} `},
		{"unterminated block ending in star", `{"x": 1}/* open *`, `{"x": 1}`},
		{"slashes in string", `{"url": "http://example.com"}`, `{"url": "http://example.com"}`},
		{"block opener in string", `{"glob": "src/*.go"}`, `{"glob": "src/*.go"}`},
		{"escaped quote in string", `{"q": "say \"//hi\""} // c`, `{"q": "say \"//hi\""} `},
		{"escaped backslash ends string", `{"p": "C:\\"} // c`, `{"p": "C:\\"} `},
		{"lone slash kept", `{"n": 4 / 2}`, `{"n": 4 / 2}`},
		{"comment holds quote", "{ // it's \"quoted\"\n\"x\": 1}", "{ \n\"x\": 1}"},
		{"adjacent comments", `{/**//**/"x":1}`, `{"x":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(StripComments([]byte(tt.input)))
			if got != tt.want {
				t.Errorf("StripComments(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRemoveTrailingCommas(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"none", `{"a": [1, 2]}`, `{"a": [1, 2]}`},
		{"object", `{"a": 1,}`, `{"a": 1}`},
		{"array", `[1, 2,]`, `[1, 2]`},
		{"whitespace kept", "{\"a\": 1,\n}", "{\"a\": 1\n}"},
		{"nested", `{"a": [1,], "b": {"c": 2,},}`, `{"a": [1], "b": {"c": 2}}`},
		{"cascading", `[1, 2, ,]`, `[1, 2 ]`},
		{"comma in string before bracket", `{"s": ", }"}`, `{"s": ", }"}`},
		{"string ending in comma", `{"s": "a,"}`, `{"s": "a,"}`},
		{"escaped quote then comma", `{"s": "\", ]"}`, `{"s": "\", ]"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(RemoveTrailingCommas([]byte(tt.input)))
			if got != tt.want {
				t.Errorf("RemoveTrailingCommas(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "commented object with trailing comma",
			input: "{\n  // comment\n  \"x\": 1,\n}",
			want:  map[string]any{"x": float64(1)},
		},
		{
			name:  "slashes inside string",
			input: `{"note": "use // not really a comment", "val": 1,}`,
			want:  map[string]any{"note": "use // not really a comment", "val": float64(1)},
		},
		{
			name:  "comment hides trailing comma and brace",
			input: "{\"a\": 1, // }, ]\n\"b\": [true, /* , ] */ false,],}",
			want:  map[string]any{"a": float64(1), "b": []any{true, false}},
		},
		{
			name:  "string with comma and bracket survives",
			input: `{"s": "x, }", /* c */ "t": "/* not */",}`,
			want:  map[string]any{"s": "x, }", "t": "/* not */"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize([]byte(tt.input))
			var got map[string]any
			require.NoError(t, json.Unmarshal(out, &got), "normalized: %s", out)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("Normalize(nil) = %q, want empty", got)
	}
}

// fragments are the building blocks of generated string contents. They are
// chosen to look like comment or trailing-comma syntax. None contains '@',
// which marks comment bodies.
var fragments = []string{"a", "Z", " ", "//", "/*", "*/", ",", ", }", ",]", `"`, `\`, "\n", "é", "{", "]"}

func stringLiteral() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 6).Draw(t, "parts")
		b, err := json.Marshal(strings.Join(parts, ""))
		if err != nil {
			t.Fatalf("marshal string: %v", err)
		}
		return string(b)
	})
}

func commentText() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(rapid.SampledFrom([]string{"@", "x", `"`, ",", "}", "]", "//", "/", "*", " "}), 0, 6).Draw(t, "comment")
		s := "@" + strings.Join(parts, "")
		// Keep block comments closable only by their own delimiter.
		return strings.ReplaceAll(s, "*/", "* /")
	})
}

// gap draws the text between two tokens: whitespace, optionally with a
// comment when comments are allowed.
func gap(t *rapid.T, comments bool) string {
	ws := rapid.SampledFrom([]string{"", " ", "\n", "\t", "  "}).Draw(t, "ws")
	if !comments {
		return ws
	}
	switch rapid.IntRange(0, 2).Draw(t, "comment-kind") {
	case 1:
		return ws + " //" + commentText().Draw(t, "line") + "\n"
	case 2:
		return ws + " /*" + commentText().Draw(t, "block") + "*/ "
	}
	return ws
}

// document generates a JSON object. With jsoncSyntax it may contain
// comments and a single trailing comma per container.
func document(jsoncSyntax bool) *rapid.Generator[string] {
	var value func(t *rapid.T, depth int) string
	value = func(t *rapid.T, depth int) string {
		kind := rapid.IntRange(0, 5).Draw(t, "kind")
		if depth >= 3 && kind >= 4 {
			kind = 0
		}
		switch kind {
		case 0:
			return stringLiteral().Draw(t, "str")
		case 1:
			return rapid.SampledFrom([]string{"0", "-1", "3.25", "1e3", "42"}).Draw(t, "num")
		case 2:
			return rapid.SampledFrom([]string{"true", "false", "null"}).Draw(t, "lit")
		case 3:
			return "{}"
		case 4:
			n := rapid.IntRange(0, 3).Draw(t, "len")
			items := make([]string, n)
			for i := range items {
				items[i] = gap(t, jsoncSyntax) + value(t, depth+1) + gap(t, jsoncSyntax)
			}
			return "[" + joinItems(t, items, jsoncSyntax) + "]"
		default:
			return object(t, depth+1, jsoncSyntax, value)
		}
	}
	return rapid.Custom(func(t *rapid.T) string {
		return gap(t, jsoncSyntax) + object(t, 0, jsoncSyntax, value) + gap(t, jsoncSyntax)
	})
}

func object(t *rapid.T, depth int, jsoncSyntax bool, value func(*rapid.T, int) string) string {
	n := rapid.IntRange(0, 4).Draw(t, "members")
	items := make([]string, n)
	for i := range items {
		items[i] = gap(t, jsoncSyntax) + stringLiteral().Draw(t, "key") + gap(t, jsoncSyntax) + ":" +
			gap(t, jsoncSyntax) + value(t, depth) + gap(t, jsoncSyntax)
	}
	return "{" + joinItems(t, items, jsoncSyntax) + "}"
}

func joinItems(t *rapid.T, items []string, jsoncSyntax bool) string {
	s := strings.Join(items, ",")
	if jsoncSyntax && len(items) > 0 && rapid.Bool().Draw(t, "trailing-comma") {
		s += "," + gap(t, true)
	}
	return s
}

func compact(t *rapid.T, data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		t.Fatalf("compact %q: %v", data, err)
	}
	return buf.String()
}

func TestPropertyStrictJSONUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := document(false).Draw(t, "doc")
		if got := string(Normalize([]byte(doc))); got != doc {
			t.Fatalf("Normalize changed strict JSON:\n in: %q\nout: %q", doc, got)
		}
	})
}

func TestPropertyCommentsRemoved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := document(true).Draw(t, "doc")
		out := Normalize([]byte(doc))
		if bytes.Contains(out, []byte("@")) {
			t.Fatalf("comment text survived:\n in: %q\nout: %q", doc, out)
		}
		if !json.Valid(out) {
			t.Fatalf("Normalize produced invalid JSON:\n in: %q\nout: %q", doc, out)
		}
	})
}

func TestPropertyMatchesTidwallJSONC(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := document(true).Draw(t, "doc")
		ours := compact(t, Normalize([]byte(doc)))
		theirs := compact(t, tjsonc.ToJSON([]byte(doc)))
		if ours != theirs {
			t.Fatalf("outputs differ for %q:\nours:   %s\ntheirs: %s", doc, ours, theirs)
		}
	})
}

func TestPropertyStringContentsSurvive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.SampledFrom(fragments), 1, 8).Draw(t, "values")
		var b strings.Builder
		b.WriteString("{ // header\n")
		for i, v := range values {
			key, _ := json.Marshal(string(rune('a' + i)))
			val, _ := json.Marshal(v)
			b.WriteString("  " + string(key) + ": " + string(val) + ", /* note */\n")
		}
		b.WriteString("}")

		var got map[string]string
		out := Normalize([]byte(b.String()))
		if err := json.Unmarshal(out, &got); err != nil {
			t.Fatalf("unmarshal %q: %v", out, err)
		}
		for i, v := range values {
			if k := string(rune('a' + i)); got[k] != v {
				t.Fatalf("value %q = %q, want %q", k, got[k], v)
			}
		}
	})
}

func TestPropertyNeverGrows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := rapid.SliceOf(rapid.SampledFrom([]byte(`{}[],:"\/* abc` + "\n"))).Draw(t, "src")
		if out := Normalize(src); len(out) > len(src) {
			t.Fatalf("len(Normalize(%q)) = %d > %d", src, len(out), len(src))
		}
	})
}
