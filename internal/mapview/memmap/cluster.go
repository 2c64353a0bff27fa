package memmap

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// clusterIDStride separates cluster ids of different zoom levels so an id
// from one render pass never names a cluster of another.
const clusterIDStride = 1 << 20

type cell struct {
	x, y int
}

// renderSource rebuilds the clusters of a clustered source for the current
// zoom using a fixed pixel grid. Cells holding two or more points become a
// cluster positioned at the mean of its members; the rest stay loose.
func (m *Map) renderSource(s *source) {
	s.clusters = nil
	s.byID = make(map[int]*cluster)
	s.loose = s.loose[:0]
	if !s.clustered {
		return
	}

	z := math.Floor(m.zoom)
	if z >= m.opts.ClusterMaxZoom {
		for i := range s.features {
			s.loose = append(s.loose, i)
		}
		return
	}

	ws := worldSize(z)
	buckets := make(map[cell][]int)
	for i, f := range s.features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			s.loose = append(s.loose, i)
			continue
		}
		mx, my := mercator(p)
		c := cell{
			x: int(math.Floor(mx * ws / m.opts.ClusterRadius)),
			y: int(math.Floor(my * ws / m.opts.ClusterRadius)),
		}
		buckets[c] = append(buckets[c], i)
	}

	cells := make([]cell, 0, len(buckets))
	for c := range buckets {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].y != cells[j].y {
			return cells[i].y < cells[j].y
		}
		return cells[i].x < cells[j].x
	})

	for _, c := range cells {
		members := buckets[c]
		if len(members) < 2 {
			s.loose = append(s.loose, members...)
			continue
		}
		cl := &cluster{
			id:     int(z)*clusterIDStride + len(s.clusters) + 1,
			center: meanPoint(s, members),
			leaves: members,
		}
		s.clusters = append(s.clusters, cl)
		s.byID[cl.id] = cl
	}
	sort.Ints(s.loose)
}

func meanPoint(s *source, idx []int) orb.Point {
	var lon, lat float64
	for _, i := range idx {
		p := s.features[i].Geometry.(orb.Point)
		lon += p.Lon()
		lat += p.Lat()
	}
	n := float64(len(idx))
	return orb.Point{lon / n, lat / n}
}
