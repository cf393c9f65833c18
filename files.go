//----------------------------------------------------------------------
// This file is part of wlink.
// Copyright (C) 2024-present Bernd Fix   >Y<
//
// wlink is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// wlink is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package wlink

// File is the content source of a namespace entry. The namespace is
// read-only: content is produced on every read and never written.
type File interface {
	Read() ([]byte, error)
}

// TextFile has fixed content.
type TextFile string

// Read returns the text.
func (f TextFile) Read() ([]byte, error) {
	return []byte(f), nil
}

// FuncFile generates its content on every read.
type FuncFile func() ([]byte, error)

// Read calls the generator.
func (f FuncFile) Read() ([]byte, error) {
	return f()
}

// Report renders a line-oriented status text on every read.
type Report func() string

// Read renders the report.
func (f Report) Read() ([]byte, error) {
	return []byte(f()), nil
}
