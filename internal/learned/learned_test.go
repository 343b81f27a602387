package learned_test

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/apptext"
	"github.com/0xADE/ade-fetchd/internal/learned"
	"github.com/0xADE/ade-fetchd/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func app(name string) apps.Application {
	return apps.Application{Name: apptext.New(name), Path: "/apps/" + name + ".desktop", Exec: name}
}

func history(qs ...string) []apptext.String {
	out := make([]apptext.String, len(qs))
	for i, q := range qs {
		out[i] = apptext.New(q)
	}
	return out
}

var _ = Describe("Index", func() {
	It("answers nothing for unknown queries", func() {
		idx := learned.New(nil)
		_, ok := idx.Lookup(apptext.New("fi"))
		Expect(ok).To(BeFalse())
		Expect(idx.Len()).To(Equal(0))
	})

	It("maps every query of the history to the opened app", func() {
		idx := learned.New(store.NewMemory(), learned.WithLogger(quiet))
		Expect(idx.Record(history("F", "Fi", "Fir"), app("Firefox"))).To(Succeed())

		for _, q := range []string{"f", "FI", "Fir"} {
			got, ok := idx.Lookup(apptext.New(q))
			Expect(ok).To(BeTrue(), q)
			Expect(got.Equal(app("Firefox"))).To(BeTrue())
		}
		Expect(idx.Len()).To(Equal(3))
	})

	It("keeps the last write per query", func() {
		idx := learned.New(nil)
		Expect(idx.Record(history("F", "Fi"), app("Firefox"))).To(Succeed())
		Expect(idx.Record(history("F", "Fil"), app("Files"))).To(Succeed())

		got, _ := idx.Lookup(apptext.New("F"))
		Expect(got.Name.String()).To(Equal("Files"))
		got, _ = idx.Lookup(apptext.New("Fi"))
		Expect(got.Name.String()).To(Equal("Firefox"))
	})

	It("skips empty queries", func() {
		idx := learned.New(nil)
		Expect(idx.Record(history("", "a"), app("Atlas"))).To(Succeed())
		Expect(idx.Len()).To(Equal(1))
	})

	Context("with a document store", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "fetchd.data.json")
		})

		It("survives a reload", func() {
			st, err := store.OpenDocument(path)
			Expect(err).NotTo(HaveOccurred())
			idx := learned.Load(st, learned.WithLogger(quiet))
			Expect(idx.Record(history("F", "Fi"), app("Firefox"))).To(Succeed())
			Expect(st.Close()).To(Succeed())

			reopened, err := store.OpenDocument(path)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()
			again := learned.Load(reopened, learned.WithLogger(quiet))

			got, ok := again.Lookup(apptext.New("Fi"))
			Expect(ok).To(BeTrue())
			Expect(got.Equal(app("Firefox"))).To(BeTrue())
			Expect(again.Len()).To(Equal(2))
		})

		It("starts empty from a corrupt document", func() {
			Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())
			st, err := store.OpenDocument(path)
			Expect(err).NotTo(HaveOccurred())
			defer st.Close()

			idx := learned.Load(st, learned.WithLogger(quiet))
			Expect(idx.Len()).To(Equal(0))
			Expect(idx.Record(history("t"), app("Terminal"))).To(Succeed())
		})
	})

	It("starts empty when the stored value has the wrong shape", func() {
		st := store.NewMemory()
		Expect(st.Put(learned.StoreKey, map[string]int{"query": 1})).To(Succeed())
		Expect(learned.Load(st, learned.WithLogger(quiet)).Len()).To(Equal(0))
	})

	It("keeps the update in memory when saving fails", func() {
		st := store.NewMemory()
		idx := learned.Load(st, learned.WithLogger(quiet))
		Expect(st.Close()).To(Succeed())

		err := idx.Record(history("ter"), app("Terminal"))
		Expect(err).To(MatchError(store.ErrClosed))
		_, ok := idx.Lookup(apptext.New("ter"))
		Expect(ok).To(BeTrue())
	})

	It("persists the final state after concurrent records", func() {
		st := store.NewMemory()
		idx := learned.Load(st, learned.WithLogger(quiet))

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer GinkgoRecover()
				defer wg.Done()
				for i := 0; i < 25; i++ {
					q := fmt.Sprintf("q%d", i%5)
					Expect(idx.Record(history(q), app(fmt.Sprintf("App%d", w)))).To(Succeed())
				}
			}(w)
		}
		wg.Wait()

		var saved []learned.Entry
		Expect(st.Get(learned.StoreKey, &saved)).To(Succeed())
		Expect(saved).To(HaveLen(5))
		for _, e := range saved {
			live, ok := idx.Lookup(e.Query)
			Expect(ok).To(BeTrue())
			Expect(live.Equal(e.App)).To(BeTrue(), "query %s", e.Query)
		}
	})
})
