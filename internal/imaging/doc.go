// Package imaging provides the photo-finishing operations applied around
// background removal: loading and saving, cropping, filling the background
// colour, adding a border and upscaling.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with (0,0) at the
// top-left corner. For regions, (x1,y1) is inclusive and (x2,y2) is
// exclusive, matching image.Rectangle.
//
// # Output
//
// Every operation returns a new *image.NRGBA anchored at the origin and never
// modifies its input, so results can be handed to other goroutines freely.
// Cut-outs keep their alpha channel until ApplyBackground flattens them.
package imaging
