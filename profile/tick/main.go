// Profiling:
// go build ./profile/tick
// go tool pprof -http=":8000" -nodefraction=0.001 ./tick cpu.pprof

package main

import (
	"github.com/Machtan/complecs"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

type comp3 struct {
	V int64
	W int64
}

func main() {
	count := 10
	iters := 1000
	entities := 100000
	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func schema() *complecs.Schema {
	s := complecs.NewSchema()
	complecs.RegisterComponent[comp1](s, "comp1")
	complecs.RegisterComponent[comp2](s, "comp2")
	complecs.RegisterComponent[comp3](s, "comp3")
	s.AddProcess(complecs.ProcessKind{
		Name:      "accumulate",
		Mutable:   []string{"comp1"},
		Immutable: []string{"comp2"},
		Body: func(r *complecs.Row) {
			c1, c2 := complecs.Mut[comp1](r, 0), complecs.Ref[comp2](r, 0)
			c1.V += c2.V
			c1.W += c2.W
		},
	})
	s.AddProcess(complecs.ProcessKind{
		Name:      "mirror",
		Mutable:   []string{"comp3"},
		Immutable: []string{"comp1"},
		Body: func(r *complecs.Row) {
			*complecs.Mut[comp3](r, 0) = comp3(complecs.Ref[comp1](r, 0))
		},
	})
	s.AddEntity(complecs.EntityKind{
		Name:       "triple",
		Components: []string{"comp1", "comp2", "comp3"},
		Processes:  []string{"accumulate", "mirror"},
	})
	s.Schedule(complecs.Step{Process: "accumulate"}, complecs.Step{Process: "mirror"})
	return s
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		w, err := complecs.NewWorld(schema(), complecs.WithCapacity(numEntities))
		if err != nil {
			panic(err)
		}
		batch := w.Builder("triple").
			Set("comp1", comp1{}).
			Set("comp2", comp2{V: 1, W: 1}).
			Set("comp3", comp3{})
		if _, err := batch.AddN(numEntities); err != nil {
			panic(err)
		}
		for range iters {
			w.Tick()
		}
	}
}
