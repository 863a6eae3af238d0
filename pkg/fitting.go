package scanner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	DefaultBeta  = 0.563362
	DefaultGamma = 0.3049452

	fitMaxIterations  = 2000
	fitMaxEvaluations = 10000
)

// PulseShape is the asymmetric pulse model
//
//	f(t) = alpha * exp(-(t-phi)*beta) * (1 - exp(-((t-phi)*gamma)^4))   t >= phi
//
// with beta and gamma fixed per channel, t in samples.
type PulseShape struct {
	Beta  float64
	Gamma float64
}

func NewPulseShape(entry *MapEntry) PulseShape {
	shape := PulseShape{Beta: DefaultBeta, Gamma: DefaultGamma}
	if beta, ok := entry.Arg(0); ok {
		shape.Beta = beta
	}
	if gamma, ok := entry.Arg(1); ok {
		shape.Gamma = gamma
	}
	return shape
}

func (s PulseShape) Eval(alpha float64, phi float64, t float64) float64 {
	dt := t - phi
	if dt < 0 {
		return 0
	}
	return alpha * math.Exp(-dt*s.Beta) * (1 - math.Exp(-math.Pow(dt*s.Gamma, 4)))
}

// Peak returns the delay from phi to the maximum of the unit-amplitude
// shape and the value at that point.
func (s PulseShape) Peak() (float64, float64) {
	bestDt, bestValue := 0.0, 0.0
	for dt := 0.0; dt <= 20; dt += 0.01 {
		value := s.Eval(1, 0, dt)
		if value > bestValue {
			bestDt, bestValue = dt, value
		}
	}
	return bestDt, bestValue
}

type FitResult struct {
	Params []float64
	Chi2   float64 // sum of squared residuals per degree of freedom
}

type fitModel func(params []float64, x float64) float64

// fitLeastSquares minimizes the squared residuals of model over (xs, ys)
// with the Nelder-Mead simplex method.
func fitLeastSquares(model fitModel, xs []float64, ys []float64, init []float64) (FitResult, error) {
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			sum := 0.0
			for i, x := range xs {
				residual := ys[i] - model(params, x)
				sum += residual * residual
			}
			return sum
		},
	}
	settings := &optimize.Settings{
		MajorIterations: fitMaxIterations,
		FuncEvaluations: fitMaxEvaluations,
	}
	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if err != nil {
		return FitResult{}, fmt.Errorf("error minimizing: %w", err)
	}
	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.Failure:
		return FitResult{}, fmt.Errorf("fit stopped with status %v", result.Status)
	}
	for _, param := range result.X {
		if math.IsNaN(param) || math.IsInf(param, 0) {
			return FitResult{}, fmt.Errorf("fit returned non finite parameters %v", result.X)
		}
	}
	ndf := max(len(xs)-len(init), 1)
	return FitResult{Params: result.X, Chi2: result.F / float64(ndf)}, nil
}

// fitPulse fits the pulse shape over trace[low..high] and returns the
// fitted phase.
func fitPulse(shape PulseShape, trace []float64, maxIndex int, low int, high int) (float64, error) {
	low = max(low, 0)
	high = min(high, len(trace)-1)
	if high-low < 2 {
		return 0, fmt.Errorf("fit window [%d, %d] too small", low, high)
	}
	xs := make([]float64, 0, high-low+1)
	ys := make([]float64, 0, high-low+1)
	for i := low; i <= high; i++ {
		xs = append(xs, float64(i))
		ys = append(ys, trace[i])
	}

	dtPeak, peakValue := shape.Peak()
	init := []float64{trace[maxIndex] / peakValue, float64(maxIndex) - dtPeak}
	model := func(params []float64, x float64) float64 {
		return shape.Eval(params[0], params[1], x)
	}
	result, err := fitLeastSquares(model, xs, ys, init)
	if err != nil {
		return 0, err
	}
	phase := result.Params[1]
	if phase < float64(low) || phase > float64(high) {
		return 0, fmt.Errorf("fitted phase %f outside window [%d, %d]", phase, low, high)
	}
	return phase, nil
}

// moyal is the Moyal approximation to the Landau distribution,
// params = {A, MPV, sigma}.
func moyal(params []float64, x float64) float64 {
	sigma := math.Abs(params[2])
	if sigma == 0 {
		return 0
	}
	lambda := (x - params[1]) / sigma
	return params[0] * math.Exp(-0.5*(lambda+math.Exp(-lambda)))
}
