package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"digitforge/internal/dataset"
	"digitforge/internal/model"
)

func main() {
	checkpoint := flag.String("checkpoint", "digitforge.gob", "Path to saved parameters")
	imagePath := flag.String("image", "", "Image to classify (PNG or JPEG)")
	invert := flag.Bool("invert", false, "Invert intensities for dark-on-light images")

	flag.Parse()

	if *imagePath == "" {
		log.Fatal("missing -image")
	}

	mdl, err := model.Load(*checkpoint)
	if err != nil {
		log.Fatalf("load checkpoint: %v", err)
	}
	side := int(math.Sqrt(float64(mdl.InputSize())))
	if side*side != mdl.InputSize() {
		log.Fatalf("checkpoint input size %d is not square", mdl.InputSize())
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		log.Fatalf("open image: %v", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		log.Fatalf("decode image: %v", err)
	}

	features := dataset.FeaturesFromImage(img, side, side)
	if *invert {
		for i := range features {
			features[i] = 1 - features[i]
		}
	}

	probs := mdl.Forward(mat.NewDense(1, len(features), features))
	best := 0
	for c := 1; c < mdl.NumClasses(); c++ {
		if probs.At(0, c) > probs.At(0, best) {
			best = c
		}
	}

	fmt.Printf("digit=%d confidence=%.4f\n", best, probs.At(0, best))
	for c := 0; c < mdl.NumClasses(); c++ {
		fmt.Printf("  p(%d)=%.4f\n", c, probs.At(0, c))
	}
}
