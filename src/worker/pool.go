package worker

import (
	"context"
	"log"
	"runtime"
	"sync"

	"chat-scraper/src/ocr"
)

// Pool is a fixed-size OCR worker pool. Each frame's bubbles are fanned out
// to the workers and collected back in their original order.
type Pool struct {
	engine ocr.Engine
	jobs   chan job
	wg     sync.WaitGroup
}

type job struct {
	ctx   context.Context
	image []byte
	out   *string
	done  *sync.WaitGroup
}

// New creates a worker pool. Size defaults to NumCPU when size<=0.
func New(size int, engine ocr.Engine) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{engine: engine, jobs: make(chan job)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				text, err := p.engine.Recognize(j.ctx, j.image)
				if err != nil {
					log.Printf("Worker: OCR error: %v", err)
					text = ""
				}
				*j.out = text
				j.done.Done()
			}
		}()
	}
}

// Recognize implements ocr.Engine by running one job on the pool.
func (p *Pool) Recognize(ctx context.Context, image []byte) (string, error) {
	texts := p.RecognizeAll(ctx, [][]byte{image})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return texts[0], nil
}

// RecognizeAll returns one text per image, index-aligned with images. Failed
// recognitions yield "". When ctx ends, dispatch stops and only the texts of
// the images already handed to a worker are returned.
func (p *Pool) RecognizeAll(ctx context.Context, images [][]byte) []string {
	out := make([]string, len(images))
	var done sync.WaitGroup
	n := 0
dispatch:
	for i, img := range images {
		if ctx.Err() != nil {
			break
		}
		done.Add(1)
		select {
		case p.jobs <- job{ctx: ctx, image: img, out: &out[i], done: &done}:
			n++
		case <-ctx.Done():
			done.Done()
			break dispatch
		}
	}
	done.Wait()
	return out[:n]
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
