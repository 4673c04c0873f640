package audio

import "math"

func float32ToInt16(sample float32) int16 {
	if sample > 1.0 {
		return 32767
	}
	if sample < -1.0 {
		return -32768
	}
	return int16(sample * 32767)
}

// Float32ToInt16Slice converts normalized float samples to int16.
func Float32ToInt16Slice(samples []float32) []int16 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]int16, len(samples))
	for i, sample := range samples {
		out[i] = float32ToInt16(sample)
	}
	return out
}

// Int16ToFloat32Slice converts int16 samples to normalized floats.
func Int16ToFloat32Slice(samples []int16) []float32 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / float32(math.MaxInt16)
	}
	return out
}

// Int16ToBytes converts int16 samples to little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		offset := i * 2
		out[offset] = byte(sample)
		out[offset+1] = byte(sample >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian bytes to int16 samples. A trailing odd
// byte is zero-padded.
func BytesToInt16(data []byte) []int16 {
	if len(data) == 0 {
		return nil
	}
	out := make([]int16, (len(data)+1)/2)
	for i := range out {
		low := data[i*2]
		high := byte(0)
		if i*2+1 < len(data) {
			high = data[i*2+1]
		}
		out[i] = int16(low) | int16(high)<<8
	}
	return out
}

// DownmixPCM16 folds interleaved multi-channel PCM16 bytes down to mono by
// averaging each frame. Mono input is returned unchanged.
func DownmixPCM16(pcm []byte, channels int) []byte {
	if channels <= 1 || len(pcm) == 0 {
		return pcm
	}
	samples := BytesToInt16(pcm)
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return Int16ToBytes(mono)
}

// Float64ToFloat32Slice narrows float64 samples, as delivered by JSON mic
// payloads, into float32.
func Float64ToFloat32Slice(samples []float64) []float32 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample)
	}
	return out
}
