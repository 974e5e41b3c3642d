package common

import "sort"

// StringSet is a set of strings
type StringSet map[string]struct{}

// Contains checks if Stringset contains the string
func (ss StringSet) Contains(elem string) bool {
	_, ok := ss[elem]
	return ok
}

// Add adds the string to StringSet
func (ss StringSet) Add(elem string) {
	ss[elem] = struct{}{}
}

// Remove removes the string from StringSet
func (ss StringSet) Remove(elem string) {
	delete(ss, elem)
}

// ToList converts StringSet to a sorted string slice
func (ss StringSet) ToList() []string {
	keys := make([]string, 0, len(ss))
	for s := range ss {
		keys = append(keys, s)
	}
	sort.Strings(keys)
	return keys
}

// NetIDSet is a set of network ids
type NetIDSet map[NetID]struct{}

// Add adds the id to NetIDSet
func (s NetIDSet) Add(id NetID) {
	s[id] = struct{}{}
}

// Del removes the id from NetIDSet
func (s NetIDSet) Del(id NetID) {
	delete(s, id)
}

// Contains checks if NetIDSet contains the id
func (s NetIDSet) Contains(id NetID) bool {
	_, ok := s[id]
	return ok
}

// ToList converts NetIDSet to a slice of ids in ascending order
func (s NetIDSet) ToList() []NetID {
	list := make([]NetID, 0, len(s))
	for id := range s {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}
