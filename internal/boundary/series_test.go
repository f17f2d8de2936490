package boundary_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hipims/hipims-go/internal/boundary"
)

var _ = Describe("Series", func() {
	makeSeries := func() boundary.Series {
		return boundary.Series{Entries: []boundary.TimeSeriesEntry{
			{T: 0, Depth: 1, Qx: 10, Qy: 0},
			{T: 10, Depth: 2, Qx: 20, Qy: 0},
			{T: 20, Depth: 3, Qx: 30, Qy: 0},
		}}
	}

	Describe("Validate", func() {
		It("accepts a strictly increasing series and recomputes DtTS", func() {
			s := makeSeries()
			Expect(s.Validate()).To(Succeed())
			Expect(s.DtTS).To(Equal(10.0))
		})

		It("rejects a series with fewer than two entries", func() {
			s := boundary.Series{Entries: []boundary.TimeSeriesEntry{{T: 0}}}
			Expect(s.Validate()).To(HaveOccurred())
		})

		It("rejects a non-strictly-increasing series", func() {
			s := boundary.Series{Entries: []boundary.TimeSeriesEntry{{T: 0}, {T: 0}}}
			Expect(s.Validate()).To(HaveOccurred())

			s2 := boundary.Series{Entries: []boundary.TimeSeriesEntry{{T: 5}, {T: 3}}}
			Expect(s2.Validate()).To(HaveOccurred())
		})
	})

	Describe("ValueAt", func() {
		var s boundary.Series

		BeforeEach(func() {
			s = makeSeries()
			Expect(s.Validate()).To(Succeed())
		})

		It("clamps to the first entry before the series starts", func() {
			v := s.ValueAt(-5)
			Expect(v.Depth).To(Equal(1.0))
		})

		It("clamps to the last entry after the series ends", func() {
			v := s.ValueAt(999)
			Expect(v.Depth).To(Equal(3.0))
		})

		It("returns an exact entry unmodified", func() {
			v := s.ValueAt(10)
			Expect(v.Depth).To(Equal(2.0))
			Expect(v.Qx).To(Equal(20.0))
		})

		It("linearly interpolates between entries", func() {
			v := s.ValueAt(5)
			Expect(v.Depth).To(Equal(1.5))
			Expect(v.Qx).To(Equal(15.0))
		})

		It("interpolates gridded entries element-wise", func() {
			g := boundary.Series{Entries: []boundary.TimeSeriesEntry{
				{T: 0, Grid: []float64{0, 10}},
				{T: 10, Grid: []float64{10, 0}},
			}}
			Expect(g.Validate()).To(Succeed())
			v := g.ValueAt(5)
			Expect(v.Grid).To(Equal([]float64{5, 5}))
		})
	})
})

var _ = Describe("Config", func() {
	baseConfig := func() boundary.Config {
		return boundary.Config{
			Name:      "inflow",
			Kind:      boundary.KindCell,
			Relations: []boundary.CellIndex{{I: 1, J: 1}},
		}
	}

	It("accepts a valid configuration", func() {
		Expect(baseConfig().Validate()).To(Succeed())
	})

	It("rejects a boundary with no relation cells", func() {
		cfg := baseConfig()
		cfg.Relations = nil
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects velocity discharge interpretation on a gridded boundary", func() {
		cfg := baseConfig()
		cfg.Kind = boundary.KindGridded
		cfg.DischargeInterp = boundary.DischargeVelocity
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})
