package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/atcwatch/skyguard/internal/config"
	"github.com/atcwatch/skyguard/internal/geo"
	"github.com/atcwatch/skyguard/internal/model"
)

var airlines = []string{"UAL", "AAL", "DAL", "SWA", "JBU", "BAW", "AFR", "DLH", "KLM", "EZY"}

var countries = []string{"US", "GB", "DE", "FR", "NL", "IT", "ES", "CA", "AU", "JP"}

// SimProvider generates plausible sector traffic. Aircraft persist between
// snapshots and advance along their headings, so track history accumulates
// the same way it would from a live feed. Aircraft leaving the sector are
// replaced by fresh arrivals.
type SimProvider struct {
	sector config.SectorConfig
	count  int
	logger *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	fleet []model.AircraftState
	last  time.Time
}

// NewSimProvider creates a simulated traffic source. A zero seed derives one
// from the clock.
func NewSimProvider(sector config.SectorConfig, count int, seed int64, logger *slog.Logger) *SimProvider {
	if count <= 0 {
		count = 12
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimProvider{
		sector: sector,
		count:  count,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Name identifies the provider in logs and status output.
func (p *SimProvider) Name() string { return "sim" }

// Snapshot advances the simulated fleet and returns a copy of its state.
func (p *SimProvider) Snapshot(ctx context.Context) ([]model.AircraftState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.fleet == nil {
		p.fleet = make([]model.AircraftState, 0, p.count)
		for i := 0; i < p.count; i++ {
			p.fleet = append(p.fleet, p.spawn(now))
		}
		p.last = now
	} else {
		elapsed := now.Sub(p.last).Seconds()
		p.last = now
		for i := range p.fleet {
			p.advance(&p.fleet[i], elapsed, now)
		}
	}

	out := make([]model.AircraftState, len(p.fleet))
	copy(out, p.fleet)
	return out, nil
}

// spawn creates a new aircraft at a random position in the sector. Altitude
// bands and speeds follow typical en-route traffic distributions.
func (p *SimProvider) spawn(now time.Time) model.AircraftState {
	lat := p.sector.MinLat + p.rng.Float64()*(p.sector.MaxLat-p.sector.MinLat)
	lon := p.sector.MinLon + p.rng.Float64()*(p.sector.MaxLon-p.sector.MinLon)

	var altitude float64
	switch p.rng.Intn(4) {
	case 0:
		altitude = p.rng.Float64() * 2000
	case 1:
		altitude = 2000 + p.rng.Float64()*8000
	case 2:
		altitude = 10000 + p.rng.Float64()*15000
	default:
		altitude = 25000 + p.rng.Float64()*15000
	}

	var speedKts float64
	var verticalRate float64
	onGround := false
	if altitude < 2000 {
		speedKts = 50 + p.rng.Float64()*150
		onGround = true
	} else {
		speedKts = 300 + p.rng.Float64()*300
		// -15..15 m/s, roughly +-3000 fpm
		verticalRate = (p.rng.Float64()*2 - 1) * 15
	}

	airline := airlines[p.rng.Intn(len(airlines))]
	flight := 100 + p.rng.Intn(900)

	return model.AircraftState{
		ID:            fmt.Sprintf("%06x", p.rng.Intn(0xffffff+1)),
		Callsign:      fmt.Sprintf("%s%d", airline, flight),
		Latitude:      lat,
		Longitude:     lon,
		Altitude:      altitude,
		GroundSpeed:   speedKts / geo.MpsToKnots,
		Heading:       p.rng.Float64() * 360,
		VerticalRate:  verticalRate,
		Timestamp:     now,
		OriginCountry: countries[p.rng.Intn(len(countries))],
		OnGround:      onGround,
	}
}

// advance moves an aircraft along its heading for elapsed seconds. Aircraft
// that exit the sector or descend through the floor are replaced.
func (p *SimProvider) advance(a *model.AircraftState, elapsed float64, now time.Time) {
	lat, lon, alt := geo.Extrapolate(a, elapsed)

	if !p.sector.Contains(lat, lon) || alt < 0 {
		*a = p.spawn(now)
		return
	}

	a.Latitude = lat
	a.Longitude = lon
	a.Altitude = alt
	a.Timestamp = now
}
