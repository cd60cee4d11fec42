// Package engine glues the declarative engine manifests to the compiled Go
// handlers that know each inference engine's file conventions.
//
// An engine manifest is an HCL file describing how to invoke a bundled
// segmentation model: the command line (with expressions evaluated at run
// time against the staged case), the label set it produces, and the voxel
// spacing it tolerates. The Registry pairs every manifest with a handler
// registered under the same name and refuses to start when a manifest has
// no matching handler, preventing a class of runtime errors where an image
// ships a manifest for a model the binary cannot drive.
package engine
