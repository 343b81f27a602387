package watch

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func set(c *Cell[int], v int) bool {
	return c.Modify(func(int) (int, bool) { return v, true })
}

var _ = Describe("Cell", func() {
	var (
		cell *Cell[int]
		ctx  context.Context
	)

	BeforeEach(func() {
		cell = New(0)
		ctx = context.Background()
	})

	It("does not report the value present at subscription", func() {
		set(cell, 1)
		rx := cell.Subscribe()

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := rx.Changed(short)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("delivers only the latest of several publishes", func() {
		rx := cell.Subscribe()
		set(cell, 1)
		set(cell, 2)
		set(cell, 3)

		v, err := rx.Changed(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(3))
	})

	It("wakes a waiting receiver", func() {
		rx := cell.Subscribe()
		got := make(chan int, 1)
		go func() {
			defer GinkgoRecover()
			v, err := rx.Changed(ctx)
			Expect(err).NotTo(HaveOccurred())
			got <- v
		}()

		time.Sleep(10 * time.Millisecond)
		set(cell, 42)
		Eventually(got).Should(Receive(Equal(42)))
	})

	It("broadcasts to every receiver", func() {
		a, b := cell.Subscribe(), cell.Subscribe()
		set(cell, 7)

		va, err := a.Changed(ctx)
		Expect(err).NotTo(HaveOccurred())
		vb, err := b.Changed(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(va).To(Equal(7))
		Expect(vb).To(Equal(7))
	})

	It("skips publishing when Modify declines", func() {
		rx := cell.Subscribe()
		Expect(cell.Modify(func(cur int) (int, bool) { return cur + 1, false })).To(BeFalse())

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := rx.Changed(short)
		Expect(err).To(MatchError(context.DeadlineExceeded))

		Expect(cell.Modify(func(cur int) (int, bool) { return cur + 5, true })).To(BeTrue())
		v, err := rx.Changed(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(5))
	})

	Context("when closed", func() {
		It("hands out a pending value before reporting closure", func() {
			rx := cell.Subscribe()
			set(cell, 9)
			cell.Close()

			v, err := rx.Changed(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(9))

			_, err = rx.Changed(ctx)
			Expect(err).To(MatchError(ErrClosed))
		})

		It("rejects new values", func() {
			cell.Close()
			Expect(set(cell, 1)).To(BeFalse())
			cell.Close()
		})

		It("releases blocked receivers", func() {
			rx := cell.Subscribe()
			done := make(chan error, 1)
			go func() {
				_, err := rx.Changed(ctx)
				done <- err
			}()
			cell.Close()
			Eventually(done).Should(Receive(MatchError(ErrClosed)))
		})
	})
})
