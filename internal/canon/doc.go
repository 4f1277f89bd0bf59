// Package canon turns arbitrary GeoJSON payloads into a canonical
// FeatureCollection and derives its content hash.
//
// Three input shapes are accepted: a bare geometry, a Feature and a
// FeatureCollection. GeometryCollections are reduced to their first member.
// Whatever the shape, the output is a FeatureCollection whose features carry
// only type, properties and geometry.
//
// The canonical serialization (MarshalCanonical) is the ONLY encoding that may
// be fed to Hash. It fixes member order, sorts property keys by UTF-16 code
// units, NFC-normalizes strings and formats numbers the way ECMAScript does,
// so identical shapes always produce identical bytes.
package canon
