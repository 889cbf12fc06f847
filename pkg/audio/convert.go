package audio

// Convert transcodes little-endian int16 PCM from one stream format to
// another: resample first, then adjust the channel count. When the two
// formats already match, the input slice is returned as-is.
func Convert(pcm []byte, from, to Format) []byte {
	if from == to || len(pcm) < 2 {
		return pcm
	}
	samples := BytesToInt16s(pcm)
	if from.SampleRate != to.SampleRate {
		samples = Resample(samples, from.Channels, from.SampleRate, to.SampleRate)
	}
	switch {
	case from.Channels == 1 && to.Channels == 2:
		samples = MonoToStereo(samples)
	case from.Channels == 2 && to.Channels == 1:
		samples = StereoToMono(samples)
	}
	return Int16sToBytes(samples)
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages each interleaved L+R pair. The sum of two
// int16 values fits in int32, and the average fits back into int16, so
// no clamping is needed.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		out[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
	}
	return out
}

// Resample converts interleaved int16 PCM from srcRate to dstRate by
// linear interpolation, preserving the channel layout. Rates that
// match, or inputs too short to interpolate, pass through unchanged.
func Resample(samples []int16, channels, srcRate, dstRate int) []int16 {
	if channels < 1 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames < 2 {
		return samples
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := 0; i < dstFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := 0; ch < channels; ch++ {
			s0 := float64(samples[idx*channels+ch])
			s1 := float64(samples[next*channels+ch])
			out[i*channels+ch] = int16(s0*(1-frac) + s1*frac)
		}
	}
	return out
}

// Int16sToBytes converts int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
