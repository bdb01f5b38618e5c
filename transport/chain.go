package transport

// Layer wraps a Transport into a decorated Transport. Layers compose
// left-to-right: the first in the slice is innermost (§4.3).
type Layer func(Transport) Transport

// Chain applies layers in order, each wrapping the previous result, so
// layers[0] is innermost and layers[len-1] is outermost.
func Chain(base Transport, layers ...Layer) Transport {
	t := base
	for _, layer := range layers {
		t = layer(t)
	}
	return t
}
