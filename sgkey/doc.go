// Package sgkey implements the subscriber-group key distribution
// protocol: membership requests, key-record codec and naming, the
// member table, the key-maker election and rekey engine, the
// key-record receiver's admission gates, and the distributor that
// wires all of it together for one collection. It is grounded on
// dist_sgkey.hpp, translated from a single C++ struct into separate
// Go types connected the same way the struct's member functions called
// each other.
package sgkey
