// Package segment turns a portrait photo into an RGBA cutout using three
// foreground-segmentation models.
//
// # Models
//
// Three models are hosted side by side, identified by ModelID:
//   - Portrait (u2net_human_seg): people-specific body mask
//   - General (u2net): general salient-object mask
//   - Clothing (u2net_cloth_seg): upper-body clothes class
//
// Models are constructed lazily by a Loader on first use and then kept for the
// life of the Engine. A failed load is not remembered, so the next request
// retries it.
//
// # Mask Combination
//
// The masks are merged with a fixed policy:
//
//	combined = max(min(portrait, general), clothing)
//
// The two body models must agree for a pixel to count as foreground, and the
// clothing model may then extend that region. A missing clothing mask behaves
// exactly like an all-zero one.
//
// # Refinement
//
// The combined mask is optionally cleaned up (morphological open, Gaussian
// blur, threshold) and then refined with alpha matting. When matting cannot
// produce a result the mask is used directly as alpha, and Cutout reports the
// fallback instead of failing the request.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Each model serialises its own Predict
// calls, so concurrent requests share the loaded sessions.
package segment
