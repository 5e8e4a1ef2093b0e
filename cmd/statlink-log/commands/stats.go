package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/statlink/statlink-go/pkg/log"
	"github.com/statlink/statlink-go/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	ResultsByCode     map[wire.Result]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Identity  uint64
	Queries   int
	LastValue *uint32

	roundTrips []time.Duration
}

// RoundTrip returns the mean request round trip, or zero.
func (c *ConnectionStats) RoundTrip() time.Duration {
	if len(c.roundTrips) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range c.roundTrips {
		total += d
	}
	return total / time.Duration(len(c.roundTrips))
}

// Collect reads the capture at path and aggregates it.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		ResultsByCode:     make(map[wire.Result]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.Identity != 0 && conn.Identity == 0 {
		conn.Identity = event.Identity
	}

	if msg := event.Message; msg != nil {
		if msg.Kind == wire.KindRequest && msg.Operation != nil && *msg.Operation == wire.OpQueryStat {
			conn.Queries++
		}
		if msg.Kind == wire.KindResponse && msg.Result != nil {
			s.ResultsByCode[*msg.Result]++
		}
		if msg.Value != nil {
			v := *msg.Value
			conn.LastValue = &v
		}
		if msg.RoundTrip != nil {
			conn.roundTrips = append(conn.roundTrips, *msg.RoundTrip)
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the capture at path and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== statlink Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.ResultsByCode) > 0 {
		codes := make([]wire.Result, 0, len(stats.ResultsByCode))
		for r := range stats.ResultsByCode {
			codes = append(codes, r)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

		fmt.Fprintln(w, "Response Results:")
		for _, r := range codes {
			fmt.Fprintf(w, "  %-20s %d\n", r.String()+":", stats.ResultsByCode[r])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Identity != 0 {
				fmt.Fprintf(w, "           Identity: %#x\n", c.stats.Identity)
			}
			if c.stats.Queries > 0 {
				fmt.Fprintf(w, "           Queries: %d (mean round trip %s)\n", c.stats.Queries, formatDuration(c.stats.RoundTrip()))
			}
			if c.stats.LastValue != nil {
				fmt.Fprintf(w, "           Last value: %d\n", *c.stats.LastValue)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
