package store

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type sample struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

func behavesLikeAStore(driver Driver) {
	var (
		s      Store
		tmpDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-store-test-*")
		Expect(err).NotTo(HaveOccurred())

		s, err = Open(driver, tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if s != nil {
			Expect(s.Close()).To(Succeed())
		}
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	It("reports missing keys as not found", func() {
		var out sample
		Expect(s.Get("missing", &out)).To(MatchError(ErrNotFound))
	})

	It("returns what was put", func() {
		Expect(s.Put("a", sample{Query: "fi", Count: 2})).To(Succeed())

		var out sample
		Expect(s.Get("a", &out)).To(Succeed())
		Expect(out).To(Equal(sample{Query: "fi", Count: 2}))
	})

	It("keeps keys independent", func() {
		Expect(s.Put("a", sample{Count: 1})).To(Succeed())
		Expect(s.Put("b", sample{Count: 2})).To(Succeed())
		Expect(s.Put("a", sample{Count: 3})).To(Succeed())

		var a, b sample
		Expect(s.Get("a", &a)).To(Succeed())
		Expect(s.Get("b", &b)).To(Succeed())
		Expect(a.Count).To(Equal(3))
		Expect(b.Count).To(Equal(2))
	})

	It("reports undecodable values as corrupt", func() {
		Expect(s.Put("a", "not an object")).To(Succeed())
		var out sample
		Expect(s.Get("a", &out)).To(MatchError(ErrCorrupt))
	})
}

var _ = Describe("Store", func() {
	Describe("json driver", func() { behavesLikeAStore(DriverJSON) })
	Describe("bolt driver", func() { behavesLikeAStore(DriverBolt) })
	Describe("sqlite driver", func() { behavesLikeAStore(DriverSQLite) })
	Describe("memory driver", func() { behavesLikeAStore(DriverMemory) })

	It("rejects unknown drivers", func() {
		_, err := Open("etcd", os.TempDir())
		Expect(err).To(MatchError(ContainSubstring("unknown store driver")))
	})
})

var _ = Describe("Document", func() {
	var (
		tmpDir string
		path   string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-document-test-*")
		Expect(err).NotTo(HaveOccurred())
		path = filepath.Join(tmpDir, "nested", "data.json")
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	It("creates the data directory", func() {
		_, err := OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Dir(path)).To(BeADirectory())
	})

	It("survives reopening", func() {
		d, err := OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Put("k", sample{Query: "fire"})).To(Succeed())
		Expect(d.Close()).To(Succeed())

		d, err = OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		var out sample
		Expect(d.Get("k", &out)).To(Succeed())
		Expect(out.Query).To(Equal("fire"))
	})

	It("reports a garbled document as corrupt", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0750)).To(Succeed())
		Expect(os.WriteFile(path, []byte("{not json"), 0600)).To(Succeed())

		d, err := OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		var out sample
		Expect(d.Get("k", &out)).To(MatchError(ErrCorrupt))
	})

	It("replaces a garbled document on put", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0750)).To(Succeed())
		Expect(os.WriteFile(path, []byte("{not json"), 0600)).To(Succeed())

		d, err := OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Put("k", sample{Count: 7})).To(Succeed())

		var out sample
		Expect(d.Get("k", &out)).To(Succeed())
		Expect(out.Count).To(Equal(7))
	})

	It("treats an empty file as an empty document", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0750)).To(Succeed())
		Expect(os.WriteFile(path, nil, 0600)).To(Succeed())

		d, err := OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		var out sample
		Expect(d.Get("k", &out)).To(MatchError(ErrNotFound))
	})

	It("refuses access after close", func() {
		d, err := OpenDocument(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Close()).To(Succeed())
		Expect(d.Put("k", sample{})).To(MatchError(ErrClosed))
	})
})

var _ = Describe("Bolt", func() {
	It("handles multiple close calls gracefully", func() {
		tmpDir, err := os.MkdirTemp("", "ade-bolt-test-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		b, err := OpenBolt(filepath.Join(tmpDir, "fetchd.bolt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Close()).To(Succeed())
		Expect(b.Close()).To(Succeed())
	})

	It("handles a nil database gracefully", func() {
		b := &Bolt{db: nil}
		Expect(b.Close()).To(Succeed())
		Expect(b.Put("k", 1)).To(MatchError(ErrClosed))
	})
})
