// Package seeder fabricates realistic exception events and publishes them to
// the bus, for demos and load tests of the monitor.
package seeder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/telhawk-systems/exception-monitor/common/events"
)

var (
	exceptionTypes = []string{
		"NullPointerException",
		"IllegalStateException",
		"IllegalArgumentException",
		"TimeoutException",
		"SQLException",
		"IOException",
		"PathError",
		"OpError",
	}
	projects     = []string{"shop", "billing", "identity", "catalog"}
	components   = []string{"checkout", "payments", "login", "search", "inventory"}
	environments = []string{"UAT", "INT", "PROD"}
	clusters     = []string{"eu-west-1", "eu-central-1", "us-east-1"}
	methods      = []string{"GET", "POST", "PUT", "DELETE"}
)

// Generator produces events. It is not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
	rnd   *rand.Rand
	now   func() time.Time

	// Spread places events evenly, with jitter, over the Spread before now.
	Spread time.Duration

	// HTTPRatio is the share of events carrying request context.
	HTTPRatio float64
}

// NewGenerator returns a Generator; a non-zero seed makes its output
// repeatable.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		faker:     gofakeit.New(seed),
		rnd:       rand.New(rand.NewSource(seed)),
		now:       time.Now,
		HTTPRatio: 0.7,
	}
}

func (g *Generator) pick(values []string) string {
	return values[g.rnd.Intn(len(values))]
}

// timestamp returns the instant of event index of total.
func (g *Generator) timestamp(index, total int) time.Time {
	now := g.now().UTC()
	if g.Spread <= 0 || total <= 0 {
		return now
	}

	base := float64(g.Spread) / float64(total)
	offset := time.Duration(float64(index)*base + (g.rnd.Float64()*2-1)*base*0.4)
	if offset < 0 {
		offset = 0
	}
	if offset > g.Spread {
		offset = g.Spread
	}
	return now.Add(-(g.Spread - offset))
}

// Event builds event index of total.
func (g *Generator) Event(index, total int) *events.Event {
	exType := g.pick(exceptionTypes)
	component := g.pick(components)
	message := fmt.Sprintf("%s while processing %s: %s", exType, g.faker.Noun(), g.faker.HackerPhrase())

	ev := &events.Event{
		ID:            uuid.NewString(),
		ExceptionType: exType,
		Message:       message,
		StackTrace:    g.stackTrace(exType, message, component),
		Timestamp:     events.NewLocalDateTime(g.timestamp(index, total)),
		ProjectName:   g.pick(projects),
		ComponentName: component,
		PodName:       fmt.Sprintf("%s-%s", component, g.faker.LetterN(5)),
		PodIP:         g.faker.IPv4Address(),
		ClusterName:   g.pick(clusters),
		Environment:   g.pick(environments),
	}

	data := map[string]any{}
	if g.rnd.Float64() < g.HTTPRatio {
		path := "/" + g.faker.Word() + "/" + g.faker.DigitN(4)
		ev.ServiceName = path
		ev.Method = g.pick(methods)
		ev.URL = "https://" + g.faker.DomainName() + path
		ev.UserAgent = g.faker.UserAgent()
		ev.SessionID = g.faker.UUID()

		data[events.KeyHTTPHeaders] = map[string]string{
			"User-Agent":    ev.UserAgent,
			"Accept":        "application/json",
			"Authorization": events.MaskedValue,
			"X-Request-ID":  g.faker.UUID(),
		}
		data[events.KeyRequestParameters] = map[string][]string{
			"id": {g.faker.DigitN(6)},
		}
		data[events.KeyRemoteAddress] = g.faker.IPv4Address()
		data[events.KeyRemoteHost] = data[events.KeyRemoteAddress]
		data[events.KeyRemotePort] = fmt.Sprint(1024 + g.rnd.Intn(60000))
	}
	if g.rnd.Intn(2) == 0 {
		data["orderId"] = g.faker.UUID()
		data["userId"] = g.faker.Username()
	}
	ev.AdditionalData, _ = json.Marshal(data)
	return ev
}

func (g *Generator) stackTrace(exType, message, component string) string {
	trace := fmt.Sprintf("%s: %s\n", exType, message)
	frames := 3 + g.rnd.Intn(6)
	for i := 0; i < frames; i++ {
		trace += fmt.Sprintf("\tat com.example.%s.%s.%s(%s.java:%d)\n",
			component, g.faker.Noun(), g.faker.Verb(), g.faker.Noun(), 10+g.rnd.Intn(400))
	}
	return trace
}
