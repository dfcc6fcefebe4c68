package application

import (
	"testing"

	"security-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_Scan(t *testing.T) {
	d := NewDefaultDetector()

	cases := []struct {
		name  string
		url   string
		body  string
		query string
		ua    string
		want  domain.CategorySet
	}{
		{name: "clean json", url: "/projects", body: `{"title":"Garden","goal":1500}`, ua: "Mozilla/5.0"},
		{name: "clean search", url: "/search", query: "q=select+a+category&page=2"},
		{name: "sqli boolean in body", url: "/auth/login", body: `{"email":"' OR '1'='1' -- "}`, want: domain.CategorySet{domain.SQLInjection}},
		{name: "sqli union in query", url: "/search", query: "q=1 UNION ALL SELECT password FROM users", want: domain.CategorySet{domain.SQLInjection}},
		{name: "sqli encoded", url: "/search", query: "q=1%27%20or%201%3D1", want: domain.CategorySet{domain.SQLInjection}},
		{name: "sqli drop", body: "name=x; DROP TABLE users", want: domain.CategorySet{domain.SQLInjection}},
		{name: "xss script tag", body: `{"bio":"<script>alert(1)</script>"}`, want: domain.CategorySet{domain.XSS}},
		{name: "xss handler", body: `<img src=x onerror=alert(1)>`, want: domain.CategorySet{domain.XSS}},
		{name: "xss scheme", query: "next=JavaScript:alert(1)", want: domain.CategorySet{domain.XSS}},
		{name: "traversal", url: "/uploads/../../etc/passwd", want: domain.CategorySet{domain.PathTraversal}},
		{name: "traversal encoded", url: "/uploads/%2e%2e%2fsecret", want: domain.CategorySet{domain.PathTraversal}},
		{name: "command substitution", body: "host=$(whoami)", want: domain.CategorySet{domain.CommandInjection}},
		{name: "command chain", body: "host=127.0.0.1; cat /tmp/x", want: domain.CategorySet{domain.CommandInjection}},
		{name: "backticks", body: "name=`id`", want: domain.CategorySet{domain.CommandInjection}},
		{name: "scanner ua", url: "/", ua: "sqlmap/1.7.2#stable (https://sqlmap.org)", want: domain.CategorySet{domain.SuspiciousUserAgent}},
		{name: "multiple", url: "/x", body: "<script>eval(1)</script>", ua: "Nikto/2.5", want: domain.CategorySet{domain.XSS, domain.SuspiciousUserAgent}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Scan(tc.url, tc.body, tc.query, tc.ua)
			if len(tc.want) == 0 {
				assert.True(t, got.Empty(), "unexpected categories %v", got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetector_OneCategoryPerMatchNotPerPattern(t *testing.T) {
	d := NewDefaultDetector()
	got := d.Scan("/x", "' or '1'='1' -- union select 1; drop table t", "", "")
	assert.Equal(t, domain.CategorySet{domain.SQLInjection}, got)
}

func TestDetector_CustomSignatures(t *testing.T) {
	d, err := NewDetector(map[domain.Category][]string{
		domain.XSS: {`<marquee`},
	})
	require.NoError(t, err)

	assert.True(t, d.Scan("/", "<MARQUEE>", "", "").Has(domain.XSS))
	assert.True(t, d.Scan("/", "<script>", "", "sqlmap").Empty(), "only configured categories are active")
}

func TestDetector_RejectsBadSignatures(t *testing.T) {
	_, err := NewDetector(map[domain.Category][]string{domain.XSS: {`(unclosed`}})
	require.Error(t, err)

	_, err = NewDetector(map[domain.Category][]string{"ddos": {`x`}})
	require.ErrorIs(t, err, domain.ErrUnknownCategory)
}

func TestDetector_NilIsClean(t *testing.T) {
	var d *Detector
	assert.True(t, d.Scan("/../", "", "", "sqlmap").Empty())
}
