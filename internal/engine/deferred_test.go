package engine

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/store"
)

var _ = Describe("Deferred search", func() {
	var (
		ctx    context.Context
		source *fakeSource
		opts   []Option
		eng    *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = newFakeSource("Adobe Photoshop", "Photos", "Firefox", "Files", "Photo Booth", "Pho")
		opts = []Option{WithLogger(quiet)}
	})

	JustBeforeEach(func() {
		var err error
		eng, err = New(ctx, source, store.NewMemory(), opts...)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(eng.Close)
	})

	It("issues increasing tokens starting at one", func() {
		t1, _ := eng.DeferredSearch(q("f"))
		t2, _ := eng.DeferredSearch(q("fi"))
		Expect(t1).To(Equal(uint64(1)))
		Expect(t2).To(Equal(uint64(2)))
	})

	It("delivers the same results as a blocking search", func() {
		token, sub := eng.DeferredSearch(q("pho"))
		Expect(sub.Token()).To(Equal(token))

		res, err := sub.Wait(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(namesOf(res)).To(Equal(namesOf(eng.BlockingSearch(q("pho")))))

		_, err = sub.Next(ctx)
		Expect(err).To(MatchError(ErrDone))
	})

	It("delivers an empty final list for unknown queries", func() {
		_, sub := eng.DeferredSearch(q("nothing"))
		res, err := sub.Next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(BeEmpty())
	})

	It("never delivers to a search superseded before it observed anything", func() {
		_, a := eng.DeferredSearch(q("f"))
		_, b := eng.DeferredSearch(q("fi"))

		_, err := a.Next(ctx)
		Expect(err).To(MatchError(ErrSuperseded))
		_, err = a.Next(ctx)
		Expect(err).To(MatchError(ErrDone))

		res, err := b.Wait(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(namesOf(res)).To(Equal([]string{"Files", "Firefox"}))
	})

	It("lets only the newest of many searches deliver", func() {
		subs := make([]*Subscription, 0, 20)
		for _, query := range []string{"p", "ph", "pho", "phot", "photo", "photos"} {
			for i := 0; i < 3; i++ {
				_, sub := eng.DeferredSearch(q(query))
				subs = append(subs, sub)
			}
		}
		last := subs[len(subs)-1]
		for _, sub := range subs[:len(subs)-1] {
			_, err := sub.Next(ctx)
			Expect(err).To(MatchError(ErrSuperseded))
		}
		res, err := last.Wait(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(namesOf(res)).To(Equal([]string{"Photos", "Adobe Photoshop"}))
	})

	It("stops waiting when the context ends", func() {
		sub := &Subscription{engine: eng, seq: eng.seq.Add(1), recv: eng.results.Subscribe()}
		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := sub.Next(short)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("ends subscriptions when the engine closes", func() {
		sub := &Subscription{engine: eng, seq: eng.seq.Add(1), recv: eng.results.Subscribe()}
		errc := make(chan error, 1)
		go func() {
			_, err := sub.Next(ctx)
			errc <- err
		}()

		Expect(eng.Close()).To(Succeed())
		Eventually(errc).Should(Receive(MatchError(ErrClosed)))
		Expect(eng.Close()).To(Succeed())

		_, late := eng.DeferredSearch(q("f"))
		_, err := late.Next(ctx)
		Expect(err).To(MatchError(ErrClosed))
	})

	Context("with incremental delivery", func() {
		BeforeEach(func() {
			opts = append(opts, WithIncrementalDelivery(1))
		})

		It("delivers growing prefixes of the final list", func() {
			want := eng.BlockingSearch(q("o"))
			Expect(len(want)).To(BeNumerically(">", 1))

			_, sub := eng.DeferredSearch(q("o"))
			var seen [][]apps.Application
			for {
				res, err := sub.Next(ctx)
				if err == ErrDone {
					break
				}
				Expect(err).NotTo(HaveOccurred())
				seen = append(seen, res)
			}

			Expect(seen).NotTo(BeEmpty())
			prev := 0
			for _, res := range seen {
				Expect(len(res)).To(BeNumerically(">", prev))
				Expect(namesOf(res)).To(Equal(namesOf(want[:len(res)])))
				prev = len(res)
			}
			Expect(prev).To(Equal(len(want)))
		})
	})

	Describe("token lifecycle", func() {
		It("keeps counting across refreshes by default", func() {
			eng.DeferredSearch(q("f"))
			_, err := eng.Refresh(ctx)
			Expect(err).NotTo(HaveOccurred())
			token, _ := eng.DeferredSearch(q("f"))
			Expect(token).To(Equal(uint64(2)))
		})

		Context("when tokens reset on refresh", func() {
			BeforeEach(func() {
				opts = append(opts, WithTokenReset(true))
			})

			It("starts over at one", func() {
				for _, query := range []string{"f", "fi"} {
					_, sub := eng.DeferredSearch(q(query))
					_, err := sub.Wait(ctx)
					Expect(err).NotTo(HaveOccurred())
				}
				_, err := eng.Refresh(ctx)
				Expect(err).NotTo(HaveOccurred())
				token, sub := eng.DeferredSearch(q("fil"))
				Expect(token).To(Equal(uint64(1)))

				res, err := sub.Wait(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(namesOf(res)).To(Equal([]string{"Files"}))
			})

			It("still supersedes searches issued before the refresh", func() {
				for range 3 {
					eng.DeferredSearch(q("f"))
				}
				_, old := eng.DeferredSearch(q("fi"))
				_, err := eng.Refresh(ctx)
				Expect(err).NotTo(HaveOccurred())

				token, sub := eng.DeferredSearch(q("fil"))
				Expect(token).To(Equal(uint64(1)))

				_, err = old.Next(ctx)
				Expect(err).To(MatchError(ErrSuperseded))

				res, err := sub.Wait(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(namesOf(res)).To(Equal([]string{"Files"}))
			})
		})
	})
})
