package evaluate

import "math/rand/v2"

// Stream identifiers mixed into the seed so the streams are independent.
const (
	shuffleStream uint64 = 0x5348_5546 // "SHUF"
	modelStream   uint64 = 0x4d4f_444c // "MODL"
)

// Streams enumerates every random source of an evaluation run. SeedAll
// resets all of them; nothing else in the program draws random numbers.
type Streams struct {
	// Shuffle orders the samples of the dataloader.
	Shuffle *rand.Rand
	// Model is handed to stochastic collaborators. The bundled model and
	// loss are deterministic and never draw from it.
	Model *rand.Rand
}

// SeedAll derives every random stream from seed. Call it once at start-up
// and pass the streams to the components that need them; equal seeds give
// bit-identical batch orders.
//
// Post-processing and scoring are plain deterministic Go. The ONNX session
// is the only numeric kernel outside this package's control; the
// deterministic config setting pins it to one thread and fixed cuDNN
// convolution algorithms.
func SeedAll(seed int64) Streams {
	s := uint64(seed)
	return Streams{
		Shuffle: rand.New(rand.NewPCG(s, shuffleStream)),
		Model:   rand.New(rand.NewPCG(s, modelStream)),
	}
}
