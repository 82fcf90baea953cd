package techmap

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/BananaMoustache/nuclei2dojo/internal/core/model"
)

// TestTagsForTechnologies 验证静态映射表的覆盖规则
func TestTagsForTechnologies(t *testing.T) {
	cases := []struct {
		name  string
		techs []string
		want  []string
	}{
		{
			name:  "wordpress implies php",
			techs: []string{"WordPress 6.4"},
			want:  []string{"php", "wordpress", "wp"},
		},
		{
			name:  "iis implies windows stack",
			techs: []string{"Microsoft IIS/10.0"},
			want:  []string{"iis", "microsoft", "windows"},
		},
		{
			name:  "linux distros collapse to linux",
			techs: []string{"Ubuntu", "Debian"},
			want:  []string{"linux"},
		},
		{
			name:  "multiple techs union",
			techs: []string{"Nginx", "Laravel"},
			want:  []string{"laravel", "nginx", "php"},
		},
		{
			name:  "vue needs exact or suffixed name",
			techs: []string{"Vue.js"},
			want:  []string{"javascript", "js", "vue"},
		},
		{
			name:  "vuetify does not match vue",
			techs: []string{"vuetify"},
			want:  []string{"tech"},
		},
		{
			name:  "node exact match",
			techs: []string{"node"},
			want:  []string{"javascript", "js", "nodejs"},
		},
		{
			name:  "unmapped tech falls back",
			techs: []string{"SomeObscureCMS"},
			want:  []string{"tech"},
		},
		{
			name:  "empty input returns nil",
			techs: nil,
			want:  nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := TagsForTechnologies(c.techs)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("TagsForTechnologies(%v) = %v, want %v", c.techs, got, c.want)
			}
		})
	}
}

// TestAggregateTags 验证聚合结果以基础标签为起点并入各主机标签
func TestAggregateTags(t *testing.T) {
	profile := model.TechProfile{
		"a.com": {"WordPress"},
		"b.com": {"Nginx"},
		"c.com": nil,
	}

	got := AggregateTags(profile)

	mustHave := append([]string{"wordpress", "wp", "php", "nginx"}, BaseIncludeTags...)
	set := make(map[string]struct{}, len(got))
	for _, tag := range got {
		set[tag] = struct{}{}
	}
	for _, tag := range mustHave {
		if _, ok := set[tag]; !ok {
			t.Errorf("aggregated tags missing %q, got %v", tag, got)
		}
	}

	// 结果必须有序
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("aggregated tags not sorted: %v", got)
			break
		}
	}
}

func TestTagsForHost(t *testing.T) {
	profile := model.TechProfile{"a.com": {"react"}}

	if got := TagsForHost(profile, "a.com"); !reflect.DeepEqual(got, []string{"javascript", "js", "react"}) {
		t.Errorf("TagsForHost known host = %v", got)
	}
	if got := TagsForHost(profile, "missing.com"); got != nil {
		t.Errorf("TagsForHost unknown host should be nil, got %v", got)
	}
}

// TestTemplateTechKeywords 验证模板标签推导剔除通用标签并保持顺序
func TestTemplateTechKeywords(t *testing.T) {
	dir := t.TempDir()

	writeTemplate := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write template: %v", err)
		}
		return path
	}

	scalar := writeTemplate("scalar.yaml", `
id: CVE-2024-0001
info:
  name: test
  tags: cve,rce,react,http
`)
	if got := TemplateTechKeywords(scalar); !reflect.DeepEqual(got, []string{"react"}) {
		t.Errorf("scalar tags = %v, want [react]", got)
	}

	list := writeTemplate("list.yaml", `
id: CVE-2024-0002
info:
  name: test
  tags:
    - cve
    - wordpress
    - exposure
    - php
`)
	if got := TemplateTechKeywords(list); !reflect.DeepEqual(got, []string{"wordpress", "php"}) {
		t.Errorf("list tags = %v, want [wordpress php]", got)
	}

	allGeneric := writeTemplate("generic.yaml", `
id: x
info:
  tags: cve,http,web
`)
	if got := TemplateTechKeywords(allGeneric); got != nil {
		t.Errorf("all-generic template should yield no keywords, got %v", got)
	}

	if got := TemplateTechKeywords(filepath.Join(dir, "missing.yaml")); got != nil {
		t.Errorf("missing file should yield nil, got %v", got)
	}
}

func TestHasKeywordOverlap(t *testing.T) {
	if !HasKeywordOverlap([]string{"react"}, []string{"React 18.2"}) {
		t.Error("substring match should hit")
	}
	if HasKeywordOverlap([]string{"react"}, []string{"Angular"}) {
		t.Error("no overlap expected")
	}
	if HasKeywordOverlap([]string{"react"}, nil) {
		t.Error("empty techs should not match")
	}
}

func TestSplitKeywordArg(t *testing.T) {
	if got := SplitKeywordArg(" React , PHP ,,"); !reflect.DeepEqual(got, []string{"react", "php"}) {
		t.Errorf("SplitKeywordArg = %v", got)
	}
	if got := SplitKeywordArg(""); got != nil {
		t.Errorf("empty arg should yield nil, got %v", got)
	}
}
