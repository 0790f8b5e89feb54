package build

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Output patterns for the classic builder, BuildKit plain progress and compose
var (
	// Step 3/7 : RUN npm ci
	classicStepRe = regexp.MustCompile(`^Step (\d+)/(\d+) : (.*)$`)
	//  ---> Using cache
	classicCacheRe = regexp.MustCompile(`^\s*---> Using cache`)
	// Successfully built 0123456789ab
	classicBuiltRe = regexp.MustCompile(`^Successfully built (\S+)`)

	// #5 [builder 2/5] RUN npm ci
	layerStartRe = regexp.MustCompile(`^#(\d+) \[([^\]]*?) ?(\d+)/(\d+)\] (\w+)\s*(.*)`)
	// #5 CACHED
	layerCachedRe = regexp.MustCompile(`^#(\d+) CACHED`)
	// #5 DONE 4.2s
	layerDoneRe = regexp.MustCompile(`^#(\d+) DONE (\d+\.?\d*)s`)
	// #9 writing image sha256:abc... done
	writingImageRe = regexp.MustCompile(`writing image (sha256:[0-9a-f]+)`)

	// Building web
	composeServiceRe = regexp.MustCompile(`^Building (\S+)`)
)

// BuildSummary is the outcome of parsing one build's output
type BuildSummary struct {
	ImageID     string
	Steps       int
	CacheHits   int
	CacheMisses int
	Duration    time.Duration
}

type layer struct {
	step     int
	total    int
	start    time.Time
	finished bool
}

// Parser turns engine output lines into progress events
type Parser struct {
	reporter Reporter
	now      func() time.Time
	start    time.Time

	steps int
	hits  int

	// classic builder state
	current      int
	currentTotal int
	currentStart time.Time
	stepOpen     bool

	// BuildKit state keyed by vertex number
	layers map[int]*layer

	imageID  string
	complete bool
}

// NewParser creates a parser reporting to r
func NewParser(r Reporter) *Parser {
	return newParserAt(r, time.Now)
}

func newParserAt(r Reporter, now func() time.Time) *Parser {
	if r == nil {
		r = ReporterFunc(func(Event) {})
	}
	return &Parser{
		reporter: r,
		now:      now,
		start:    now(),
		layers:   make(map[int]*layer),
	}
}

// Feed consumes one output line
func (p *Parser) Feed(line string) {
	line = strings.TrimRight(line, "\r")
	now := p.now()

	if m := classicStepRe.FindStringSubmatch(line); m != nil {
		p.closeStep(now)
		step, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		p.steps++
		p.current, p.currentTotal, p.currentStart, p.stepOpen = step, total, now, true
		p.reporter.Report(Event{
			Kind: EventStepStarted, Time: now, Step: step, Total: total,
			Instruction: strings.TrimSpace(m[3]), StepStart: now,
		})
		return
	}

	if classicCacheRe.MatchString(line) {
		if p.stepOpen {
			p.hits++
			p.reporter.Report(Event{
				Kind: EventCacheHit, Time: now, Step: p.current, Total: p.currentTotal,
				Elapsed: now.Sub(p.currentStart),
			})
		}
		return
	}

	if m := classicBuiltRe.FindStringSubmatch(line); m != nil {
		p.closeStep(now)
		p.imageID = m[1]
		p.emitComplete(now)
		return
	}

	if m := layerStartRe.FindStringSubmatch(line); m != nil {
		num, _ := strconv.Atoi(m[1])
		if _, seen := p.layers[num]; seen {
			return
		}
		step, _ := strconv.Atoi(m[3])
		total, _ := strconv.Atoi(m[4])
		p.layers[num] = &layer{step: step, total: total, start: now}
		p.steps++

		instruction := m[5]
		if detail := strings.TrimSpace(m[6]); detail != "" {
			instruction += " " + detail
		}
		p.reporter.Report(Event{
			Kind: EventStepStarted, Time: now, Step: step, Total: total,
			Instruction: instruction, Service: strings.TrimSpace(m[2]), StepStart: now,
		})
		return
	}

	if m := layerCachedRe.FindStringSubmatch(line); m != nil {
		num, _ := strconv.Atoi(m[1])
		if l, ok := p.layers[num]; ok && !l.finished {
			l.finished = true
			p.hits++
			p.reporter.Report(Event{
				Kind: EventCacheHit, Time: now, Step: l.step, Total: l.total,
				Elapsed: now.Sub(l.start),
			})
		}
		return
	}

	if m := layerDoneRe.FindStringSubmatch(line); m != nil {
		num, _ := strconv.Atoi(m[1])
		if l, ok := p.layers[num]; ok && !l.finished {
			l.finished = true
			seconds, _ := strconv.ParseFloat(m[2], 64)
			p.reporter.Report(Event{
				Kind: EventStepFinished, Time: now, Step: l.step, Total: l.total,
				Duration: time.Duration(seconds * float64(time.Second)),
			})
		}
		return
	}

	if m := writingImageRe.FindStringSubmatch(line); m != nil {
		p.imageID = m[1]
		p.emitComplete(now)
		return
	}

	if m := composeServiceRe.FindStringSubmatch(line); m != nil {
		p.reporter.Report(Event{Kind: EventServiceBuilding, Time: now, Service: m[1]})
	}
}

// Finish closes any open step. When the build succeeded without an image-id line
// (compose builds), a completion event is emitted without one.
func (p *Parser) Finish(success bool) BuildSummary {
	now := p.now()
	p.closeStep(now)
	if success && !p.complete {
		p.emitComplete(now)
	}
	return p.Summary()
}

// Summary returns the counts gathered so far
func (p *Parser) Summary() BuildSummary {
	return BuildSummary{
		ImageID:     p.imageID,
		Steps:       p.steps,
		CacheHits:   p.hits,
		CacheMisses: p.steps - p.hits,
		Duration:    p.now().Sub(p.start),
	}
}

func (p *Parser) closeStep(now time.Time) {
	if !p.stepOpen {
		return
	}
	p.stepOpen = false
	p.reporter.Report(Event{
		Kind: EventStepFinished, Time: now, Step: p.current, Total: p.currentTotal,
		Duration: now.Sub(p.currentStart),
	})
}

func (p *Parser) emitComplete(now time.Time) {
	if p.complete {
		return
	}
	p.complete = true
	p.reporter.Report(Event{
		Kind:        EventBuildComplete,
		Time:        now,
		ImageID:     p.imageID,
		CacheHits:   p.hits,
		CacheMisses: p.steps - p.hits,
		Duration:    now.Sub(p.start),
	})
}
