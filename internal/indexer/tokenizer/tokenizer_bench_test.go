package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleText = map[string]string{
	"short":  "The quick brown fox jumps over the lazy dog",
	"medium": strings.Repeat("Inverted indexes map each term to the documents containing it. ", 8),
	"long":   strings.Repeat("Search engines tokenize, stem and rank crawled pages by tf-idf. ", 200),
}

func BenchmarkQuery(b *testing.B) {
	a := newTestAnalyzer()
	for name, text := range sampleText {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Query(text)
			}
		})
	}
}

func BenchmarkDocument(b *testing.B) {
	var page strings.Builder
	page.WriteString("<html><head><title>Benchmark page</title><script>var x = 1;</script></head><body>")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&page, `<h2>Section %d</h2><p>%s <a href="/page/%d#top">related page %d</a></p>`,
			i, sampleText["medium"], i, i)
	}
	page.WriteString("</body></html>")
	content := []byte(page.String())
	a := newTestAnalyzer()

	b.ReportAllocs()
	b.SetBytes(int64(len(content)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Document("https://example.com/bench", content); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkQueryParallel(b *testing.B) {
	a := newTestAnalyzer()
	text := sampleText["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = a.Query(text)
		}
	})
}
